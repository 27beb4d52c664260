package riot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"league-tracker/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, upstream string) *Client {
	t.Helper()
	cfg := &config.Config{
		RiotAPIKey:  "test-key",
		RiotRegion:  "euw1",
		RiotRouting: "europe",
	}
	c := NewClient(cfg, NewGate(0), zerolog.Nop())
	c.SetBaseURL(upstream)
	c.SetRetryPolicy(RetryPolicy{
		RateLimitAttempts:   5,
		ServerErrorAttempts: 3,
		MaxWait:             50 * time.Millisecond,
	})
	return c
}

func TestClientSendsAuthHeader(t *testing.T) {
	var gotKey atomic.Value
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey.Store(r.Header.Get("X-Riot-Token"))
		w.Write([]byte(`{"puuid":"p1","gameName":"Foo","tagLine":"EUW"}`))
	}))
	defer ts.Close()

	c := testClient(t, ts.URL)
	acc, err := c.AccountByRiotID(context.Background(), "Foo", "EUW")
	require.NoError(t, err)
	assert.Equal(t, "p1", acc.PUUID)
	assert.Equal(t, "test-key", gotKey.Load())
}

func TestClientRetriesRateLimitThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`["M1","M2"]`))
	}))
	defer ts.Close()

	c := testClient(t, ts.URL)
	ids, err := c.MatchIDsByPUUID(context.Background(), "p1", MatchIDsQuery{Start: 0, Count: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"M1", "M2"}, ids)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientRateLimitExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	c := testClient(t, ts.URL)
	_, err := c.MatchIDsByPUUID(context.Background(), "p1", MatchIDsQuery{Start: 0, Count: 1})
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusTooManyRequests))
	assert.Equal(t, int32(5), calls.Load())
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	c := testClient(t, ts.URL)
	c.SetRetryPolicy(RetryPolicy{
		RateLimitAttempts:   5,
		ServerErrorAttempts: 2,
		MaxWait:             10 * time.Millisecond,
	})
	_, err := c.SummonerByPUUID(context.Background(), "p1")
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusBadGateway))
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	c := testClient(t, ts.URL)
	_, err := c.MatchByID(context.Background(), "M404")
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusNotFound))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientMatchIDsQueryParams(t *testing.T) {
	var gotQuery atomic.Value
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query())
		w.Write([]byte(`[]`))
	}))
	defer ts.Close()

	c := testClient(t, ts.URL)
	_, err := c.MatchIDsByPUUID(context.Background(), "p1", MatchIDsQuery{
		Start: 100, Count: 50, StartTime: 1700000000, EndTime: 1710000000,
	})
	require.NoError(t, err)

	q := gotQuery.Load().(url.Values)
	assert.Equal(t, "100", q.Get("start"))
	assert.Equal(t, "50", q.Get("count"))
	assert.Equal(t, "1700000000", q.Get("startTime"))
	assert.Equal(t, "1710000000", q.Get("endTime"))
}

func TestClientOmitsZeroTimeBounds(t *testing.T) {
	var gotQuery atomic.Value
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query())
		w.Write([]byte(`[]`))
	}))
	defer ts.Close()

	c := testClient(t, ts.URL)
	_, err := c.MatchIDsByPUUID(context.Background(), "p1", MatchIDsQuery{Start: 0, Count: 20})
	require.NoError(t, err)

	q := gotQuery.Load().(url.Values)
	assert.Empty(t, q.Get("startTime"))
	assert.Empty(t, q.Get("endTime"))
}

func TestClientMatchPayloadKeepsRawBody(t *testing.T) {
	raw := `{"metadata":{"matchId":"M1"},"info":{"gameStartTimestamp":1700000000000,"gameDuration":1800,"queueId":420,"platformId":"EUW1","participants":[]}}`
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(raw))
	}))
	defer ts.Close()

	c := testClient(t, ts.URL)
	payload, err := c.MatchByID(context.Background(), "M1")
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(payload.Raw))
	require.NotNil(t, payload.Info.GameStartTimestamp)
	assert.Equal(t, int64(1700000000000), *payload.Info.GameStartTimestamp)
	require.NotNil(t, payload.Info.QueueID)
	assert.Equal(t, 420, *payload.Info.QueueID)
}

func TestParseMatchPayloadNullsMissingFields(t *testing.T) {
	payload, err := ParseMatchPayload([]byte(`{"info":{"participants":[{"puuid":"p1"}]}}`))
	require.NoError(t, err)
	assert.Nil(t, payload.Info.GameStartTimestamp)
	assert.Nil(t, payload.Info.QueueID)
	require.Len(t, payload.Info.Participants, 1)
	assert.Nil(t, payload.Info.Participants[0].Kills)
	require.NotNil(t, payload.Info.Participants[0].PUUID)
}

func TestGateEnforcesMinimumInterval(t *testing.T) {
	gate := NewGate(30 * time.Millisecond)

	start := time.Now()
	for i := 0; i < 3; i++ {
		err := gate.Do(context.Background(), func() error { return nil })
		require.NoError(t, err)
	}
	// Three calls need at least two full intervals between them.
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestGateZeroIntervalDoesNotBlock(t *testing.T) {
	gate := NewGate(0)
	start := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, gate.Do(context.Background(), func() error { return nil }))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestGateRespectsContextCancellation(t *testing.T) {
	gate := NewGate(500 * time.Millisecond)
	require.NoError(t, gate.Do(context.Background(), func() error { return nil }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := gate.Do(ctx, func() error { return nil })
	assert.Error(t, err)
}
