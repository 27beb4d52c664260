package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"league-tracker/internal/config"
	"league-tracker/internal/constants"
	"league-tracker/internal/domain"
	"league-tracker/internal/lock"
	"league-tracker/internal/repository"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type Mode string

const (
	ModeLatest   Mode = "latest"
	ModeBackfill Mode = "backfill"
)

// ErrAlreadyRunning is returned when the global lock is held by another
// run. Callers fail fast; they never queue behind a running sync.
var ErrAlreadyRunning = errors.New("sync already running")

// Options shape one pipeline run. Zero values fall back to configuration.
type Options struct {
	// Mode is inferred as backfill when From is set.
	Mode Mode
	// From is the backfill lower bound, YYYY-MM-DD.
	From string
	// MaxFriends caps friends processed this run.
	MaxFriends int
	// MaxIDs caps match ids linked per friend this run.
	MaxIDs int
	// FriendID targets exactly one friend, bypassing staleness ordering.
	FriendID string
	// TimeBudget overrides the configured per-run budget.
	TimeBudget time.Duration
}

type FriendResult struct {
	FriendID      string `json:"friendId"`
	Riot          string `json:"riot"`
	OK            bool   `json:"ok"`
	Error         string `json:"error,omitempty"`
	RankSkipped   bool   `json:"rankSkipped"`
	MatchesLinked int    `json:"matchesLinked"`
	MatchIDPages  int    `json:"matchIdPages"`
	// Skipped marks lock contention: a successful no-op, not a failure.
	Skipped bool `json:"skipped"`
}

type Progress struct {
	FriendsProcessed int   `json:"friendsProcessed"`
	DetailsFetched   int   `json:"detailsFetched"`
	ElapsedMS        int64 `json:"elapsedMs"`
	BudgetMS         int64 `json:"budgetMs"`
	StoppedEarly     bool  `json:"stoppedEarly"`
}

type Pending struct {
	MatchDetails    int `json:"matchDetails"`
	BackfillFriends int `json:"backfillFriends"`
}

type Report struct {
	OK          bool           `json:"ok"`
	Mode        Mode           `json:"mode"`
	From        string         `json:"from,omitempty"`
	Total       int            `json:"total"`
	OKCount     int            `json:"okCount"`
	Results     []FriendResult `json:"results"`
	Progress    Progress       `json:"progress"`
	Pending     Pending        `json:"pending"`
	Done        bool           `json:"done"`
	NextDelayMS int64          `json:"nextDelayMs"`
}

// Pipeline is the run orchestrator: it owns entity selection, per-friend
// advancement under locks, and the globally capped detail-fetch phase.
type Pipeline struct {
	friends      *repository.FriendRepository
	states       *repository.SyncStateRepository
	matches      *repository.MatchRepository
	participants *repository.ParticipantRepository
	ranks        *RankService
	locks        lock.Leaser
	api          RiotAPI
	cfg          *config.Config

	logger zerolog.Logger
	now    func() time.Time
}

func NewPipeline(
	friends *repository.FriendRepository,
	states *repository.SyncStateRepository,
	matches *repository.MatchRepository,
	participants *repository.ParticipantRepository,
	ranks *RankService,
	locks lock.Leaser,
	api RiotAPI,
	cfg *config.Config,
	logger zerolog.Logger,
) *Pipeline {
	return &Pipeline{
		friends:      friends,
		states:       states,
		matches:      matches,
		participants: participants,
		ranks:        ranks,
		locks:        locks,
		api:          api,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
	}
}

// SetNow overrides the clock. Test hook.
func (p *Pipeline) SetNow(now func() time.Time) {
	p.now = now
}

// RunSync executes one bounded pipeline run under the global lock.
// Per-friend failures are captured in the report; only global setup
// failures (lock, bad options) propagate.
func (p *Pipeline) RunSync(ctx context.Context, opts Options) (*Report, error) {
	startedAt := p.now()

	budgetDur := p.cfg.TimeBudget
	if opts.TimeBudget > 0 {
		budgetDur = clampDuration(opts.TimeBudget, 10*time.Second, 290*time.Second)
	}
	b := newBudget(startedAt, budgetDur)

	fromSeconds, err := parseFromDate(opts.From)
	if err != nil {
		return nil, err
	}

	mode := opts.Mode
	if opts.From != "" {
		mode = ModeBackfill
	}
	if mode == "" {
		mode = ModeLatest
	}

	maxFriends := p.cfg.MaxFriendsPerRun
	if opts.MaxFriends > 0 {
		maxFriends = clampInt(opts.MaxFriends, 1, 50)
	}
	maxIDs := p.cfg.MaxMatchIDsPerFriendPerRun
	if opts.MaxIDs > 0 {
		maxIDs = clampInt(opts.MaxIDs, 1, 5000)
	}

	acquired, err := p.locks.TryAcquire(ctx, lock.GlobalKey, constants.GlobalLockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire global lock: %w", err)
	}
	if !acquired {
		return nil, ErrAlreadyRunning
	}
	defer p.locks.Release(context.WithoutCancel(ctx), lock.GlobalKey)

	p.logger.Info().
		Str("mode", string(mode)).
		Str("from", opts.From).
		Int("max_friends", maxFriends).
		Int("max_ids", maxIDs).
		Dur("budget", budgetDur).
		Msg("sync run started")

	friendsToSync, err := p.pickFriends(ctx, mode, fromSeconds, maxFriends, opts.FriendID)
	if err != nil {
		return nil, fmt.Errorf("failed to select friends: %w", err)
	}

	results := make([]FriendResult, 0, len(friendsToSync))
	var processedIDs []string

	for _, f := range friendsToSync {
		if b.expired(p.now()) {
			break
		}
		res := p.syncFriend(ctx, f, mode, fromSeconds, maxIDs, b)
		if res.OK && !res.Skipped {
			processedIDs = append(processedIDs, f.ID)
		}
		results = append(results, res)
	}

	detailsFetched := 0
	if p.cfg.MaxDetailsPerRun > 0 && !b.expired(p.now()) {
		candidates, err := p.pickDetailCandidates(ctx, mode, processedIDs, p.cfg.MaxDetailsPerRun)
		if err != nil {
			p.logger.Error().Err(err).Msg("failed to pick detail candidates")
		} else {
			detailsFetched = p.fetchMatchDetails(ctx, candidates, b)
		}
		if err := p.rebuildShortRosters(ctx, b); err != nil {
			p.logger.Error().Err(err).Msg("participant rebuild sweep failed")
		}
	}

	pending, err := p.pendingCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending work: %w", err)
	}

	okCount := 0
	for _, r := range results {
		if r.OK {
			okCount++
		}
	}

	done := pending.MatchDetails == 0
	if mode == ModeBackfill {
		done = done && pending.BackfillFriends == 0
	}

	// Conservative pacing hints: keep air between runs to smooth quota.
	nextDelay := int64(650)
	switch {
	case detailsFetched == 0:
		nextDelay = 1200
	case mode == ModeBackfill:
		nextDelay = 900
	}

	stoppedEarly := b.expired(p.now())
	report := &Report{
		OK:      true,
		Mode:    mode,
		From:    opts.From,
		Total:   len(results),
		OKCount: okCount,
		Results: results,
		Progress: Progress{
			FriendsProcessed: len(processedIDs),
			DetailsFetched:   detailsFetched,
			ElapsedMS:        b.elapsed(p.now()).Milliseconds(),
			BudgetMS:         budgetDur.Milliseconds(),
			StoppedEarly:     stoppedEarly,
		},
		Pending:     pending,
		Done:        done,
		NextDelayMS: nextDelay,
	}

	p.logger.Info().
		Int("friends_processed", len(processedIDs)).
		Int("details_fetched", detailsFetched).
		Int("pending_details", pending.MatchDetails).
		Int("pending_backfill", pending.BackfillFriends).
		Bool("done", done).
		Bool("stopped_early", stoppedEarly).
		Int64("elapsed_ms", report.Progress.ElapsedMS).
		Msg("sync run finished")

	return report, nil
}

// syncFriend wraps one friend's advancement: lock, rank, match-id cursor,
// release. Lock contention is a skipped no-op; any other failure lands in
// the result row without aborting the run.
func (p *Pipeline) syncFriend(ctx context.Context, f domain.Friend, mode Mode, fromSeconds int64, maxIDs int, b budget) FriendResult {
	res := FriendResult{FriendID: f.ID, Riot: f.RiotID(), OK: true}

	acquired, err := p.locks.TryAcquire(ctx, f.ID, constants.FriendLockTTL)
	if err != nil {
		res.OK = false
		res.Error = err.Error()
		return res
	}
	if !acquired {
		res.Skipped = true
		res.Error = "friend locked (another sync in progress)"
		p.logger.Debug().Str("friend_id", f.ID).Msg("friend lock contended, skipping")
		return res
	}
	defer p.locks.Release(context.WithoutCancel(ctx), f.ID)

	rankSkipped, err := p.ranks.SyncRank(ctx, f.ID)
	if err != nil {
		res.OK = false
		res.Error = err.Error()
		p.logger.Warn().Err(err).Str("friend_id", f.ID).Msg("friend rank sync failed")
		return res
	}
	res.RankSkipped = rankSkipped

	cr, err := p.advanceMatchIDs(ctx, f.ID, mode, fromSeconds, maxIDs, b)
	res.MatchesLinked = cr.linked
	res.MatchIDPages = cr.pages
	if err != nil {
		res.OK = false
		res.Error = err.Error()
		p.logger.Warn().Err(err).Str("friend_id", f.ID).Msg("friend match-id advancement failed")
	}
	return res
}

// pickFriends applies the per-mode selection policy: latest refreshes the
// stalest friends first, backfill only friends with cursor work left.
func (p *Pipeline) pickFriends(ctx context.Context, mode Mode, fromSeconds int64, maxFriends int, friendID string) ([]domain.Friend, error) {
	if friendID != "" {
		f, err := p.friends.Get(ctx, friendID)
		if err != nil {
			return nil, fmt.Errorf("friend %s not found: %w", friendID, err)
		}
		return []domain.Friend{*f}, nil
	}

	friends, err := p.friends.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	if mode == ModeLatest {
		sort.SliceStable(friends, func(i, j int) bool {
			return timeOrZero(friends[i].LastSyncAt).Before(timeOrZero(friends[j].LastSyncAt))
		})
		return capFriends(friends, maxFriends), nil
	}

	type withState struct {
		friend domain.Friend
		state  *domain.SyncState
	}
	var withWork []withState
	for _, f := range friends {
		st, err := p.states.Get(ctx, f.ID)
		if err != nil {
			st = nil // no state yet: all work remains
		}
		if backfillHasWork(st, fromSeconds) {
			withWork = append(withWork, withState{friend: f, state: st})
		}
	}

	sort.SliceStable(withWork, func(i, j int) bool {
		return stateUpdatedOrZero(withWork[i].state).Before(stateUpdatedOrZero(withWork[j].state))
	})

	out := make([]domain.Friend, 0, len(withWork))
	for _, w := range withWork {
		out = append(out, w.friend)
	}
	return capFriends(out, maxFriends), nil
}

func backfillHasWork(st *domain.SyncState, fromSeconds int64) bool {
	if st == nil {
		return true
	}
	if !st.MatchlistDone {
		return true
	}
	// A changed lower bound reopens the cursor.
	if fromSeconds > 0 && st.BackfillFromTS == nil {
		return true
	}
	if fromSeconds > 0 && st.BackfillFromTS != nil && *st.BackfillFromTS != fromSeconds {
		return true
	}
	return false
}

func (p *Pipeline) pendingCounts(ctx context.Context) (Pending, error) {
	var pending Pending
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := p.matches.CountIncomplete(gCtx)
		pending.MatchDetails = n
		return err
	})
	g.Go(func() error {
		n, err := p.states.CountUnexhausted(gCtx)
		pending.BackfillFriends = n
		return err
	})

	if err := g.Wait(); err != nil {
		return Pending{}, err
	}
	return pending, nil
}

// parseFromDate resolves a YYYY-MM-DD lower bound to unix seconds at UTC
// midnight. Empty means no bound.
func parseFromDate(from string) (int64, error) {
	if from == "" {
		return 0, nil
	}
	d, err := time.Parse("2006-01-02", from)
	if err != nil {
		return 0, fmt.Errorf("invalid 'from' date %q, use YYYY-MM-DD: %w", from, err)
	}
	return d.UTC().Unix(), nil
}

func capFriends(friends []domain.Friend, n int) []domain.Friend {
	if len(friends) > n {
		return friends[:n]
	}
	return friends
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func stateUpdatedOrZero(st *domain.SyncState) time.Time {
	if st == nil {
		return time.Time{}
	}
	return st.UpdatedAt
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampDuration(v, min, max time.Duration) time.Duration {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
