package riot

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"league-tracker/internal/config"
	"league-tracker/internal/constants"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// RetryPolicy bounds the retry loops. Rate-limited responses get the long
// schedule, transient server errors the short one; anything else fails
// immediately.
type RetryPolicy struct {
	RateLimitAttempts   int
	ServerErrorAttempts int
	MaxWait             time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		RateLimitAttempts:   5,
		ServerErrorAttempts: 3,
		MaxWait:             20 * time.Second,
	}
}

func (p RetryPolicy) rateLimitBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.RandomizationFactor = 0.3
	b.Multiplier = 2
	b.MaxInterval = 15 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (p RetryPolicy) serverErrorBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.RandomizationFactor = 0.3
	b.Multiplier = 2
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

type Client struct {
	apiKey       string
	regionalBase string // routing host, e.g. https://europe.api.riotgames.com
	platformBase string // platform host, e.g. https://euw1.api.riotgames.com
	client       *fasthttp.Client
	gate         *Gate
	retry        RetryPolicy
	logger       zerolog.Logger
}

func NewClient(cfg *config.Config, gate *Gate, logger zerolog.Logger) *Client {
	return &Client{
		apiKey:       cfg.RiotAPIKey,
		regionalBase: fmt.Sprintf("https://%s.api.riotgames.com", cfg.RiotRouting),
		platformBase: fmt.Sprintf("https://%s.api.riotgames.com", cfg.RiotRegion),
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		gate:   gate,
		retry:  DefaultRetryPolicy(),
		logger: logger,
	}
}

func NewGateFromConfig(cfg *config.Config) *Gate {
	return NewGate(cfg.MinCallInterval)
}

// SetBaseURL points both routing hosts at one base. Test hook.
func (c *Client) SetBaseURL(base string) {
	c.regionalBase = base
	c.platformBase = base
}

func (c *Client) SetRetryPolicy(p RetryPolicy) {
	c.retry = p
}

func (c *Client) AccountByRiotID(ctx context.Context, name, tag string) (*Account, error) {
	u := fmt.Sprintf("%s/riot/account/v1/accounts/by-riot-id/%s/%s",
		c.regionalBase, url.PathEscape(name), url.PathEscape(tag))
	return doJSON[Account](ctx, c, "account/by-riot-id", u)
}

func (c *Client) SummonerByPUUID(ctx context.Context, puuid string) (*Summoner, error) {
	u := fmt.Sprintf("%s/lol/summoner/v4/summoners/by-puuid/%s", c.platformBase, url.PathEscape(puuid))
	return doJSON[Summoner](ctx, c, "summoner/by-puuid", u)
}

func (c *Client) LeagueEntriesBySummonerID(ctx context.Context, summonerID string) ([]LeagueEntry, error) {
	u := fmt.Sprintf("%s/lol/league/v4/entries/by-summoner/%s", c.platformBase, url.PathEscape(summonerID))
	entries, err := doJSON[[]LeagueEntry](ctx, c, "league/entries/by-summoner", u)
	if err != nil {
		return nil, err
	}
	return *entries, nil
}

func (c *Client) MatchIDsByPUUID(ctx context.Context, puuid string, q MatchIDsQuery) ([]string, error) {
	v := url.Values{}
	v.Set("start", strconv.Itoa(q.Start))
	v.Set("count", strconv.Itoa(q.Count))
	if q.StartTime > 0 {
		v.Set("startTime", strconv.FormatInt(q.StartTime, 10))
	}
	if q.EndTime > 0 {
		v.Set("endTime", strconv.FormatInt(q.EndTime, 10))
	}
	u := fmt.Sprintf("%s/lol/match/v5/matches/by-puuid/%s/ids?%s",
		c.regionalBase, url.PathEscape(puuid), v.Encode())

	ids, err := doJSON[[]string](ctx, c, "match/ids/by-puuid", u)
	if err != nil {
		return nil, err
	}
	return *ids, nil
}

func (c *Client) MatchByID(ctx context.Context, matchID string) (*MatchPayload, error) {
	u := fmt.Sprintf("%s/lol/match/v5/matches/%s", c.regionalBase, url.PathEscape(matchID))
	body, err := c.do(ctx, "match/by-id", u)
	if err != nil {
		return nil, err
	}

	payload, err := ParseMatchPayload(body)
	if err != nil {
		return nil, fmt.Errorf("match/by-id: decode: %w", err)
	}
	return payload, nil
}

func (c *Client) MatchTimelineByID(ctx context.Context, matchID string) ([]byte, error) {
	u := fmt.Sprintf("%s/lol/match/v5/matches/%s/timeline", c.regionalBase, url.PathEscape(matchID))
	return c.do(ctx, "match/timeline", u)
}

// PlatformStatus probes the platform status endpoint. Used by the health
// handler to validate the credential without exposing it.
func (c *Client) PlatformStatus(ctx context.Context) error {
	u := fmt.Sprintf("%s/lol/status/v4/platform-data", c.platformBase)
	_, err := c.do(ctx, "status/platform-data", u)
	return err
}

func doJSON[T any](ctx context.Context, c *Client, label, url string) (*T, error) {
	body, err := c.do(ctx, label, url)
	if err != nil {
		return nil, err
	}
	var result T
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", label, err)
	}
	return &result, nil
}

// do performs one logical call: gate, request, bounded retry. The attempt
// counters are explicit so the policy stays inspectable in tests.
func (c *Client) do(ctx context.Context, label, url string) ([]byte, error) {
	rlBackoff := c.retry.rateLimitBackoff()
	srvBackoff := c.retry.serverErrorBackoff()
	rlAttempts := 0
	srvAttempts := 0

	for {
		status, body, retryAfter, err := c.execute(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", label, err)
		}

		var wait time.Duration
		switch {
		case status >= 200 && status < 300:
			return body, nil

		case status == fasthttp.StatusTooManyRequests:
			rlAttempts++
			if rlAttempts >= c.retry.RateLimitAttempts {
				c.logger.Warn().Str("label", label).Int("attempts", rlAttempts).Msg("rate limit retries exhausted")
				return nil, &StatusError{Code: status, Body: string(body)}
			}
			wait = retryAfter
			if wait <= 0 {
				wait = rlBackoff.NextBackOff()
			}
			if wait > c.retry.MaxWait {
				wait = c.retry.MaxWait
			}
			c.logger.Debug().
				Str("label", label).
				Int("attempt", rlAttempts).
				Dur("wait", wait).
				Msg("rate limited, backing off")

		case status >= 500:
			srvAttempts++
			if srvAttempts >= c.retry.ServerErrorAttempts {
				return nil, &StatusError{Code: status, Body: string(body)}
			}
			wait = srvBackoff.NextBackOff()
			c.logger.Debug().
				Str("label", label).
				Int("attempt", srvAttempts).
				Int("status", status).
				Dur("wait", wait).
				Msg("upstream server error, retrying")

		default:
			return nil, &StatusError{Code: status, Body: string(body)}
		}

		if err := sleepCtx(ctx, wait); err != nil {
			return nil, fmt.Errorf("%s: %w", label, err)
		}
	}
}

func (c *Client) execute(ctx context.Context, url string) (status int, body []byte, retryAfter time.Duration, err error) {
	err = c.gate.Do(ctx, func() error {
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)

		req.SetRequestURI(url)
		req.Header.SetMethod(fasthttp.MethodGet)
		req.Header.Set("X-Riot-Token", c.apiKey)

		deadline, ok := ctx.Deadline()
		if !ok {
			deadline = time.Now().Add(constants.ExternalAPITimeout)
		}
		if err := c.client.DoDeadline(req, resp, deadline); err != nil {
			return err
		}

		status = resp.StatusCode()
		body = append([]byte(nil), resp.Body()...)
		if ra := string(resp.Header.Peek(fasthttp.HeaderRetryAfter)); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return nil
	})
	return status, body, retryAfter, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
