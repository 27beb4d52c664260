package server

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"league-tracker/internal/config"
	"league-tracker/internal/database"
	"league-tracker/internal/lock"
	"league-tracker/internal/repository"
	"league-tracker/internal/riot"
	"league-tracker/internal/service"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProber struct{ err error }

func (p *stubProber) PlatformStatus(ctx context.Context) error { return p.err }

func newTestServer(t *testing.T) (*Server, *lock.Store) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		RiotAPIKey:                 "k",
		RiotRegion:                 "euw1",
		TimeBudget:                 60 * time.Second,
		MaxFriendsPerRun:           5,
		MaxIDPagesPerFriend:        1,
		MaxMatchIDsPerFriendPerRun: 100,
		MaxDetailsPerRun:           15,
		DetailsPerFriendLatest:     3,
		DetailsPerFriendBackfill:   2,
		RankFreshness:              10 * time.Minute,
		CronMaxTicks:               5,
		CronCeiling:                30 * time.Second,
	}

	nop := zerolog.Nop()
	friends := repository.NewFriendRepository(db, nop)
	states := repository.NewSyncStateRepository(db, nop)
	matches := repository.NewMatchRepository(db, nop)
	participants := repository.NewParticipantRepository(db, nop)
	snapshots := repository.NewRankSnapshotRepository(db, nop)
	locks := lock.NewStore(db, nop)

	ranks := service.NewRankService(friends, snapshots, failingRiot{}, cfg, nop)
	pipeline := service.NewPipeline(friends, states, matches, participants, ranks, locks, failingRiot{}, cfg, nop)

	return &Server{
		pipeline: pipeline,
		ticker:   service.NewTicker(pipeline, nop),
		synergy:  service.NewSynergyService(friends, matches, participants),
		friends:  friends,
		matches:  matches,
		prober:   &stubProber{},
		cfg:      cfg,
		logger:   nop,
	}, locks
}

// failingRiot rejects every call; handler tests never reach upstream.
type failingRiot struct{}

var errNoUpstream = fmt.Errorf("no upstream in tests")

func (failingRiot) AccountByRiotID(context.Context, string, string) (*riot.Account, error) {
	return nil, errNoUpstream
}

func (failingRiot) SummonerByPUUID(context.Context, string) (*riot.Summoner, error) {
	return nil, errNoUpstream
}

func (failingRiot) LeagueEntriesBySummonerID(context.Context, string) ([]riot.LeagueEntry, error) {
	return nil, errNoUpstream
}

func (failingRiot) MatchIDsByPUUID(context.Context, string, riot.MatchIDsQuery) ([]string, error) {
	return nil, errNoUpstream
}

func (failingRiot) MatchByID(context.Context, string) (*riot.MatchPayload, error) {
	return nil, errNoUpstream
}

func (failingRiot) MatchTimelineByID(context.Context, string) ([]byte, error) {
	return nil, errNoUpstream
}

func TestCreateAndListFriends(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.Routes()

	body := bytes.NewBufferString(`{"riotName":" Foo ","riotTag":"#EUW"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/friends", body)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		ID       string `json:"ID"`
		RiotName string `json:"RiotName"`
		RiotTag  string `json:"RiotTag"`
		Region   string `json:"Region"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "Foo", created.RiotName)
	assert.Equal(t, "EUW", created.RiotTag)
	assert.Equal(t, "euw1", created.Region)
	assert.NotEmpty(t, created.ID)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/friends", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Foo")
}

func TestCreateFriendValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.Routes()

	req := httptest.NewRequest(http.MethodPost, "/api/friends",
		bytes.NewBufferString(`{"riotName":"","riotTag":""}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPatchFriendNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.Routes()

	req := httptest.NewRequest(http.MethodPatch, "/api/friends/nope",
		bytes.NewBufferString(`{"avatarUrl":"https://example.com/a.png"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncConflictWhenLockHeld(t *testing.T) {
	srv, locks := newTestServer(t)
	mux := srv.Routes()

	ok, err := locks.TryAcquire(context.Background(), lock.GlobalKey, 10*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	req := httptest.NewRequest(http.MethodPost, "/api/sync", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already running")
}

func TestSyncRejectsBadFromDate(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.Routes()

	req := httptest.NewRequest(http.MethodPost, "/api/sync?from=not-a-date", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRiotHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.Routes()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/riot/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	srv.prober = &stubProber{err: fmt.Errorf("key expired")}
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/riot/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOverviewEmpty(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.Routes()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/overview", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Friends []any `json:"friends"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Friends)
}

func TestSynergyEmpty(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.Routes()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/synergy", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Pairs []any `json:"pairs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Pairs)
}
