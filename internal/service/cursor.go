package service

import (
	"context"
	"fmt"

	"league-tracker/internal/constants"
	"league-tracker/internal/riot"
)

type cursorResult struct {
	linked int
	pages  int
}

// advanceMatchIDs moves one friend's match-id position forward and links
// the discovered ids as placeholders. Latest mode is stateless (one page
// from position zero); backfill pages through a frozen time window using
// the persisted cursor.
func (p *Pipeline) advanceMatchIDs(ctx context.Context, friendID string, mode Mode, fromSeconds int64, maxIDs int, b budget) (cursorResult, error) {
	puuid, err := p.ranks.EnsurePUUID(ctx, friendID)
	if err != nil {
		return cursorResult{}, err
	}

	if mode == ModeBackfill {
		return p.advanceBackfill(ctx, friendID, puuid, fromSeconds, maxIDs, b)
	}
	return p.advanceLatest(ctx, friendID, puuid, maxIDs)
}

func (p *Pipeline) advanceLatest(ctx context.Context, friendID, puuid string, maxIDs int) (cursorResult, error) {
	count := min(constants.MatchIDPageSize, maxIDs)
	ids, err := p.api.MatchIDsByPUUID(ctx, puuid, riot.MatchIDsQuery{Start: 0, Count: count})
	if err != nil {
		return cursorResult{}, fmt.Errorf("failed to list recent match ids: %w", err)
	}

	ids = dedupeKeepOrder(ids)
	if err := p.linkIDs(ctx, friendID, ids); err != nil {
		return cursorResult{pages: 1}, err
	}

	now := p.now()
	var newest *string
	if len(ids) > 0 {
		newest = &ids[0]
	}
	if err := p.friends.SetLastSync(ctx, friendID, newest, now); err != nil {
		return cursorResult{linked: len(ids), pages: 1}, err
	}
	if _, err := p.states.Ensure(ctx, friendID); err != nil {
		return cursorResult{linked: len(ids), pages: 1}, err
	}
	if err := p.states.TouchLastRun(ctx, friendID, now); err != nil {
		return cursorResult{linked: len(ids), pages: 1}, err
	}

	return cursorResult{linked: len(ids), pages: 1}, nil
}

// advanceBackfill pages through [from, end) starting at the saved offset.
// The upper bound is frozen the first time a lower bound is seen so the
// window cannot drift between runs; a changed lower bound resets both the
// bound and the cursor. The cursor is persisted on every exit path,
// including errors, so progress already linked is never re-walked.
func (p *Pipeline) advanceBackfill(ctx context.Context, friendID, puuid string, fromSeconds int64, maxIDs int, b budget) (res cursorResult, err error) {
	if fromSeconds == 0 {
		return cursorResult{}, fmt.Errorf("backfill requires a 'from' date")
	}

	state, err := p.states.Ensure(ctx, friendID)
	if err != nil {
		return cursorResult{}, err
	}

	sameFrom := state.BackfillFromTS != nil && *state.BackfillFromTS == fromSeconds
	endSeconds := p.now().Unix()
	if sameFrom && state.BackfillEndTS != nil {
		endSeconds = *state.BackfillEndTS
	}
	if err := p.states.SetWindow(ctx, friendID, fromSeconds, endSeconds, !sameFrom); err != nil {
		return cursorResult{}, err
	}

	cursor := state.MatchlistCursorStart
	done := state.MatchlistDone
	if !sameFrom {
		cursor = 0
		done = false
	}
	if done {
		return cursorResult{}, nil
	}

	// Whatever happens below, the position must land in the store.
	defer func() {
		if saveErr := p.states.SaveCursor(context.WithoutCancel(ctx), friendID, cursor, done, p.now()); saveErr != nil && err == nil {
			err = saveErr
		}
	}()

	maxPages := p.cfg.MaxIDPagesPerFriend
	for pageN := 0; pageN < maxPages && res.linked < maxIDs && !done; pageN++ {
		if b.expired(p.now()) {
			break
		}

		count := min(constants.MatchIDPageSize, maxIDs-res.linked)
		ids, apiErr := p.api.MatchIDsByPUUID(ctx, puuid, riot.MatchIDsQuery{
			Start:     cursor,
			Count:     count,
			StartTime: fromSeconds,
			EndTime:   endSeconds,
		})
		if apiErr != nil {
			return res, fmt.Errorf("failed to list match ids at offset %d: %w", cursor, apiErr)
		}
		res.pages++

		if len(ids) == 0 {
			done = true
			break
		}

		// The cursor tracks the upstream page length; deduping is local.
		pageLen := len(ids)
		ids = dedupeKeepOrder(ids)
		if linkErr := p.linkIDs(ctx, friendID, ids); linkErr != nil {
			return res, linkErr
		}
		res.linked += len(ids)
		cursor += pageLen

		// A short page means the window has no ids past this offset.
		if pageLen < count {
			done = true
		}
	}

	if touchErr := p.friends.TouchLastSync(ctx, friendID, p.now()); touchErr != nil {
		return res, touchErr
	}
	return res, nil
}

func (p *Pipeline) linkIDs(ctx context.Context, friendID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := p.matches.CreatePlaceholders(ctx, ids); err != nil {
		return err
	}
	return p.matches.LinkFriend(ctx, friendID, ids)
}

func dedupeKeepOrder(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
