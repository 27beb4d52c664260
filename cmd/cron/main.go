package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"league-tracker/internal/config"
	fxmodules "league-tracker/internal/fx"
	"league-tracker/internal/service"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// One-shot tick-loop driver, the binary a crontab entry points at. It runs
// until the pending work drains or the ceiling hits, then exits.
func main() {
	mode := flag.String("mode", "latest", "sync mode: latest or backfill")
	from := flag.String("from", "", "backfill lower bound, YYYY-MM-DD")
	flag.Parse()

	app := fx.New(
		fxmodules.Module,
		fx.Invoke(func(
			shutdowner fx.Shutdowner,
			ticker *service.Ticker,
			cfg *config.Config,
			db *sql.DB,
			logger zerolog.Logger,
		) {
			go func() {
				defer shutdowner.Shutdown()
				defer db.Close()

				ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				summary, err := ticker.Run(ctx, service.TickOptions{
					Mode:          service.Mode(*mode),
					From:          *from,
					MaxTicks:      cfg.CronMaxTicks,
					Ceiling:       cfg.CronCeiling,
					PerTickBudget: cfg.TimeBudget,
				})
				if err != nil {
					logger.Error().Err(err).Msg("tick loop failed")
					return
				}
				logger.Info().
					Int("ticks", summary.Ticks).
					Bool("done", summary.Done).
					Int64("elapsed_ms", summary.ElapsedMS).
					Msg("cron run complete")
			}()
		}),
	)
	app.Run()
}
