// Package maintenance runs scheduled background upkeep, currently the
// embedding backfill that repairs rows stored without a vector.
package maintenance

import (
	"context"
	"fmt"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/xenolinkco/xenochat/internal/logging"
)

// Backfiller repairs vectorless rows in batches and reports how many it fixed.
type Backfiller interface {
	BackfillEmbeddings(ctx context.Context, batchSize int) (int, error)
}

type Service struct {
	schedule  string
	batchSize int
	backfill  Backfiller
	cron      *rcron.Cron
}

// NewService schedules backfill runs. schedule is a six-field cron
// expression with a leading seconds field, e.g. "0 30 3 * * *".
func NewService(schedule string, batchSize int, backfill Backfiller) *Service {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Service{
		schedule:  schedule,
		batchSize: batchSize,
		backfill:  backfill,
	}
}

func (s *Service) Start(ctx context.Context) error {
	log := logging.L("maintenance")

	s.cron = rcron.New(rcron.WithSeconds())
	if _, err := s.cron.AddFunc(s.schedule, func() {
		s.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("schedule backfill (%q): %w", s.schedule, err)
	}
	s.cron.Start()
	log.Infow("started", "schedule", s.schedule, "batchSize", s.batchSize)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// RunOnce executes one backfill pass. Also called directly by the CLI.
func (s *Service) RunOnce(ctx context.Context) {
	log := logging.L("maintenance")
	start := time.Now()
	repaired, err := s.backfill.BackfillEmbeddings(ctx, s.batchSize)
	if err != nil {
		log.Warnw("backfill pass failed", "repaired", repaired, "error", err)
		return
	}
	if repaired > 0 {
		log.Infow("backfill pass done", "repaired", repaired, "elapsed", time.Since(start))
	}
}

func (s *Service) Stop() {
	if s.cron == nil {
		return
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		logging.L("maintenance").Warnw("stop timeout waiting for running pass")
	}
}
