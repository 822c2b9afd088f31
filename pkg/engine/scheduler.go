package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Start launches the background cycles: the recommendation refresh and
// the insights aggregation. Each cycle runs under a panic guard so a
// failed run never kills the schedule. Start is a no-op when the engine
// is globally disabled.
func (e *Engine) Start(ctx context.Context) error {
	if !e.opts.Enabled {
		e.logger.Info("engine disabled, background cycles not started")
		return nil
	}
	if e.scheduler != nil {
		return fmt.Errorf("engine already started")
	}

	scheduler := cron.New(cron.WithChain(cron.Recover(cronLogger{e.logger})))

	if _, err := scheduler.AddFunc(everySpec(e.opts.Engine.RecommendationRefresh), func() {
		e.RefreshAll(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule recommendation refresh: %w", err)
	}

	if _, err := scheduler.AddFunc(everySpec(e.opts.Insights.Interval), func() {
		e.GenerateInsights(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule insight generation: %w", err)
	}

	scheduler.Start()
	e.scheduler = scheduler

	e.logger.WithFields(logrus.Fields{
		"recommendation_refresh": e.opts.Engine.RecommendationRefresh,
		"insights_interval":      e.opts.Insights.Interval,
	}).Info("engine background cycles started")
	return nil
}

// Stop halts the background cycles and waits for any running cycle to
// finish.
func (e *Engine) Stop() {
	if e.scheduler == nil {
		return
	}
	<-e.scheduler.Stop().Done()
	e.scheduler = nil
	e.logger.Info("engine background cycles stopped")
}

func everySpec(d time.Duration) string {
	return fmt.Sprintf("@every %s", d)
}

// cronLogger adapts logrus to the cron logger interface so recovered
// cycle panics land in the engine's log stream.
type cronLogger struct {
	logger *logrus.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.logger.WithField("details", keysAndValues).Debug(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.logger.WithError(err).WithField("details", keysAndValues).Error(msg)
}
