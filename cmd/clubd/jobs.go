package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jimf8th/my-skool-club-sub000/pkg/async"
	"github.com/jimf8th/my-skool-club-sub000/pkg/config"
	"github.com/jimf8th/my-skool-club-sub000/pkg/observability"
)

const jobTimeout = 2 * time.Minute

// newScheduler registers the background jobs. It returns nil when jobs are disabled.
func newScheduler(cfg config.JobsConfig, app *application, db *sql.DB, metrics *observability.Metrics, logger *observability.Logger) (*cron.Cron, error) {
	if !cfg.Enabled {
		logger.Info("Background jobs are disabled")
		return nil, nil
	}

	c := cron.New()

	if _, err := c.AddFunc(cfg.OverdueReportSpec, func() {
		_ = async.Run(context.Background(), logger, jobTimeout, "overdue report", func(ctx context.Context) error {
			reportOverdue(ctx, app, metrics, logger)
			metrics.UpdateDBStats(db)
			return nil
		})
	}); err != nil {
		return nil, fmt.Errorf("schedule overdue report: %w", err)
	}

	if _, err := c.AddFunc(cfg.TokenCleanupSpec, func() {
		_ = async.Run(context.Background(), logger, jobTimeout, "token cleanup", func(ctx context.Context) error {
			return cleanupTokens(ctx, app, logger)
		})
	}); err != nil {
		return nil, fmt.Errorf("schedule token cleanup: %w", err)
	}

	logger.Infof("Overdue report schedule: %s", cfg.OverdueReportSpec)
	logger.Infof("Token cleanup schedule: %s", cfg.TokenCleanupSpec)
	return c, nil
}

// reportOverdue publishes the number of overdue invoices and checkouts
func reportOverdue(ctx context.Context, app *application, metrics *observability.Metrics, logger *observability.Logger) {
	counters := map[string]func(context.Context) (int, error){
		"invoice":  app.services.Invoices.CountOverdue,
		"checkout": app.services.Checkouts.CountOverdue,
	}
	for kind, count := range counters {
		n, err := count(ctx)
		if err != nil {
			logger.WithError(err).WithField("kind", kind).Error("Overdue count failed")
			continue
		}
		metrics.SetOverdue(kind, n)
		logger.WithFields(map[string]interface{}{"kind": kind, "overdue": n}).Debug("Overdue count updated")
	}
}

func cleanupTokens(ctx context.Context, app *application, logger *observability.Logger) error {
	n, err := app.services.Auth.CleanupExpired(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Infof("Removed %d expired tokens", n)
	}
	return nil
}
