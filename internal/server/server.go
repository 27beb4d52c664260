package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"league-tracker/internal/config"
	"league-tracker/internal/domain"
	"league-tracker/internal/repository"
	"league-tracker/internal/riot"
	"league-tracker/internal/service"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// StatusProber is the slice of the upstream client the health handler uses.
type StatusProber interface {
	PlatformStatus(ctx context.Context) error
}

type Server struct {
	pipeline *service.Pipeline
	ticker   *service.Ticker
	synergy  *service.SynergyService
	friends  *repository.FriendRepository
	matches  *repository.MatchRepository
	prober   StatusProber
	cfg      *config.Config
	logger   zerolog.Logger
}

func New(
	pipeline *service.Pipeline,
	ticker *service.Ticker,
	synergy *service.SynergyService,
	friends *repository.FriendRepository,
	matches *repository.MatchRepository,
	client *riot.Client,
	cfg *config.Config,
	logger zerolog.Logger,
) *Server {
	return &Server{
		pipeline: pipeline,
		ticker:   ticker,
		synergy:  synergy,
		friends:  friends,
		matches:  matches,
		prober:   client,
		cfg:      cfg,
		logger:   logger,
	}
}

func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sync", s.handleSync)
	mux.HandleFunc("GET /api/cron/sync", s.handleCronSync)
	mux.HandleFunc("GET /api/riot/health", s.handleRiotHealth)
	mux.HandleFunc("GET /api/overview", s.handleOverview)
	mux.HandleFunc("GET /api/synergy", s.handleSynergy)
	mux.HandleFunc("GET /api/friends", s.handleListFriends)
	mux.HandleFunc("POST /api/friends", s.handleCreateFriend)
	mux.HandleFunc("PATCH /api/friends/{id}", s.handlePatchFriend)
	return mux
}

type syncRequest struct {
	Mode       string `json:"mode"`
	From       string `json:"from"`
	MaxFriends int    `json:"maxFriends"`
	MaxIDs     int    `json:"maxIds"`
	FriendID   string `json:"friendId"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	// Query params override the body so curl-style invocations stay simple.
	q := r.URL.Query()
	if v := q.Get("mode"); v != "" {
		req.Mode = v
	}
	if v := q.Get("from"); v != "" {
		req.From = v
	}
	if v := q.Get("friendId"); v != "" {
		req.FriendID = v
	}
	if n, err := strconv.Atoi(q.Get("maxFriends")); err == nil {
		req.MaxFriends = n
	}
	if n, err := strconv.Atoi(q.Get("maxIds")); err == nil {
		req.MaxIDs = n
	}
	if req.From != "" {
		if _, err := time.Parse("2006-01-02", req.From); err != nil {
			writeError(w, http.StatusBadRequest, "invalid 'from' date, use YYYY-MM-DD")
			return
		}
	}

	report, err := s.pipeline.RunSync(r.Context(), service.Options{
		Mode:       service.Mode(req.Mode),
		From:       req.From,
		MaxFriends: req.MaxFriends,
		MaxIDs:     req.MaxIDs,
		FriendID:   req.FriendID,
	})
	if err != nil {
		if errors.Is(err, service.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error().Err(err).Msg("sync run failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCronSync(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := service.TickOptions{
		Mode:          service.Mode(q.Get("mode")),
		From:          q.Get("from"),
		MaxTicks:      s.cfg.CronMaxTicks,
		Ceiling:       s.cfg.CronCeiling,
		PerTickBudget: s.cfg.TimeBudget,
	}

	summary, err := s.ticker.Run(r.Context(), opts)
	if err != nil {
		s.logger.Error().Err(err).Msg("cron tick loop failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleRiotHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.prober.PlatformStatus(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"ok":    false,
			"error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type overviewFriend struct {
	ID         string            `json:"id"`
	Riot       string            `json:"riot"`
	Region     string            `json:"region"`
	AvatarURL  *string           `json:"avatarUrl"`
	RankedSolo overviewRank      `json:"rankedSolo"`
	RankedFlex overviewRank      `json:"rankedFlex"`
	LastSyncAt *time.Time        `json:"lastSyncAt"`
	LastMatch  *overviewLastGame `json:"lastMatch"`
}

type overviewRank struct {
	Tier     *string `json:"tier"`
	Division *string `json:"division"`
	LP       *int    `json:"lp"`
	Wins     *int    `json:"wins"`
	Losses   *int    `json:"losses"`
}

func toOverviewRank(r domain.QueueRank) overviewRank {
	return overviewRank{
		Tier:     r.Tier,
		Division: r.Division,
		LP:       r.LP,
		Wins:     r.Wins,
		Losses:   r.Losses,
	}
}

type overviewLastGame struct {
	MatchID     string `json:"matchId"`
	GameStartMS *int64 `json:"gameStartMs"`
	QueueID     *int   `json:"queueId"`
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	friends, err := s.friends.GetAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]overviewFriend, 0, len(friends))
	for _, f := range friends {
		of := overviewFriend{
			ID:         f.ID,
			Riot:       f.RiotID(),
			Region:     f.Region,
			AvatarURL:  f.AvatarURL,
			RankedSolo: toOverviewRank(f.RankedSolo),
			RankedFlex: toOverviewRank(f.RankedFlex),
			LastSyncAt: f.LastSyncAt,
		}
		if f.LastMatchID != nil {
			if m, err := s.matches.Get(r.Context(), *f.LastMatchID); err == nil && !m.Incomplete() {
				of.LastMatch = &overviewLastGame{
					MatchID:     m.ID,
					GameStartMS: m.GameStartMS,
					QueueID:     m.QueueID,
				}
			}
		}
		out = append(out, of)
	}
	writeJSON(w, http.StatusOK, map[string]any{"friends": out})
}

func (s *Server) handleSynergy(w http.ResponseWriter, r *http.Request) {
	recent := 200
	if n, err := strconv.Atoi(r.URL.Query().Get("recent")); err == nil && n > 0 {
		recent = n
	}
	pairs, err := s.synergy.Pairs(r.Context(), recent)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pairs": pairs})
}

func (s *Server) handleListFriends(w http.ResponseWriter, r *http.Request) {
	friends, err := s.friends.GetAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"friends": friends})
}

type createFriendRequest struct {
	RiotName  string  `json:"riotName"`
	RiotTag   string  `json:"riotTag"`
	Region    string  `json:"region"`
	AvatarURL *string `json:"avatarUrl"`
}

func (s *Server) handleCreateFriend(w http.ResponseWriter, r *http.Request) {
	var req createFriendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.RiotName = strings.TrimSpace(req.RiotName)
	req.RiotTag = strings.TrimSpace(strings.TrimPrefix(req.RiotTag, "#"))
	if req.RiotName == "" || req.RiotTag == "" {
		writeError(w, http.StatusBadRequest, "riotName and riotTag are required")
		return
	}
	if req.Region == "" {
		req.Region = s.cfg.RiotRegion
	}

	f := &domain.Friend{
		RiotName:  req.RiotName,
		RiotTag:   req.RiotTag,
		Region:    strings.ToLower(req.Region),
		AvatarURL: req.AvatarURL,
	}
	if err := s.friends.Create(r.Context(), f); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

type patchFriendRequest struct {
	AvatarURL *string `json:"avatarUrl"`
}

func (s *Server) handlePatchFriend(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.friends.Get(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, "friend not found")
		return
	}

	var req patchFriendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.friends.SetAvatarURL(r.Context(), id, req.AvatarURL); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	f, err := s.friends.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}
