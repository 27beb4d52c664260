package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	RiotAPIKey  string
	RiotRegion  string // platform routing, e.g. euw1
	RiotRouting string // regional routing, e.g. europe

	DBPath     string
	ServerPort string
	LogLevel   string

	// Minimum delay between two upstream calls, enforced by the request gate.
	MinCallInterval time.Duration

	// Per-run wall-clock budget for the sync pipeline.
	TimeBudget time.Duration

	MaxFriendsPerRun           int
	MaxIDPagesPerFriend        int
	MaxMatchIDsPerFriendPerRun int

	// Global cap on match detail fetches per run, not per friend.
	MaxDetailsPerRun         int
	DetailsPerFriendLatest   int
	DetailsPerFriendBackfill int

	RankFreshness     time.Duration
	MatchFreshness    time.Duration
	TimelineFreshness time.Duration
	FetchTimeline     bool

	// Tick loop / cron driver.
	CronMaxTicks int
	CronCeiling  time.Duration
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		RiotAPIKey:  getEnv("RIOT_API_KEY", ""),
		RiotRegion:  strings.ToLower(getEnv("RIOT_REGION", "euw1")),
		RiotRouting: strings.ToLower(getEnv("RIOT_ROUTING", "europe")),

		DBPath:     getEnv("DB_PATH", "league.db"),
		ServerPort: getEnv("SERVER_PORT", "8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		MinCallInterval: time.Duration(clampInt(getEnv("RIOT_MIN_CALL_INTERVAL_MS", ""), 130, 0, 2000)) * time.Millisecond,
		TimeBudget:      time.Duration(clampInt(getEnv("SYNC_TIME_BUDGET_MS", ""), 240_000, 10_000, 290_000)) * time.Millisecond,

		MaxFriendsPerRun:           clampInt(getEnv("SYNC_MAX_FRIENDS_PER_RUN", ""), 5, 1, 50),
		MaxIDPagesPerFriend:        clampInt(getEnv("SYNC_MATCH_ID_PAGES_PER_FRIEND", ""), 1, 0, 10),
		MaxMatchIDsPerFriendPerRun: clampInt(getEnv("SYNC_MAX_MATCH_IDS_PER_FRIEND_PER_RUN", ""), 100, 1, 5000),

		MaxDetailsPerRun:         clampInt(getEnv("SYNC_MAX_MATCH_DETAILS_PER_RUN", ""), 15, 0, 400),
		DetailsPerFriendLatest:   clampInt(getEnv("SYNC_DETAILS_PER_FRIEND_PER_RUN", ""), 3, 0, 25),
		DetailsPerFriendBackfill: clampInt(getEnv("SYNC_DETAILS_PER_FRIEND_PER_RUN", ""), 2, 0, 25),

		RankFreshness:     time.Duration(clampInt(getEnv("RANK_FRESHNESS_MINUTES", ""), 10, 1, 720)) * time.Minute,
		MatchFreshness:    time.Duration(clampInt(getEnv("MATCH_FRESHNESS_MINUTES", ""), 30, 1, 1440)) * time.Minute,
		TimelineFreshness: time.Duration(clampInt(getEnv("TIMELINE_FRESHNESS_MINUTES", ""), 30, 1, 1440)) * time.Minute,
		FetchTimeline:     boolEnv("FETCH_TIMELINE"),

		CronMaxTicks: clampInt(getEnv("CRON_MAX_TICKS", ""), 20, 1, 200),
		CronCeiling:  time.Duration(clampInt(getEnv("CRON_CEILING_MS", ""), 280_000, 10_000, 600_000)) * time.Millisecond,
	}

	if cfg.RiotAPIKey == "" {
		return nil, fmt.Errorf("RIOT_API_KEY is required")
	}

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("riot_region", cfg.RiotRegion).
		Str("riot_routing", cfg.RiotRouting).
		Dur("min_call_interval", cfg.MinCallInterval).
		Dur("time_budget", cfg.TimeBudget).
		Int("max_friends_per_run", cfg.MaxFriendsPerRun).
		Int("max_details_per_run", cfg.MaxDetailsPerRun).
		Bool("fetch_timeline", cfg.FetchTimeline).
		Msg("configuration loaded")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func clampInt(raw string, def, min, max int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

func boolEnv(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

var Module = fx.Provide(Load)
