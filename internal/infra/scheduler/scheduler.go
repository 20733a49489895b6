package scheduler

import (
	"context"
	"time"

	"vesting_treasury_bot/internal/app"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// TreasuryScheduler runs the daily treasury snapshot. It never advances
// vesting state; time only moves for a schedule when a create or withdraw
// operation reads the clock.
type TreasuryScheduler struct {
	cronEngine   *cron.Cron
	reportSvc    *app.TreasuryReportService
	logger       *logrus.Entry
	cronSpecRept string
}

func NewTreasuryScheduler(
	reportSvc *app.TreasuryReportService,
	logger *logrus.Entry,
	cronSpecReport string, // e.g., "0 9 * * *" (9 AM daily)
) *TreasuryScheduler {
	return &TreasuryScheduler{
		cronEngine:   cron.New(cron.WithLocation(time.Local)), // Use server's local time for cron
		reportSvc:    reportSvc,
		logger:       logger,
		cronSpecRept: cronSpecReport,
	}
}

func (s *TreasuryScheduler) Start() {
	s.logger.Info("Starting treasury scheduler...")

	_, err := s.cronEngine.AddFunc(s.cronSpecRept, func() {
		s.logger.Info("Cron job triggered for treasury snapshot.")
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
		defer cancel()
		if err := s.reportSvc.LogSnapshot(ctx); err != nil {
			s.logger.WithError(err).Error("Error during treasury snapshot")
		}
	})
	if err != nil {
		s.logger.WithError(err).Fatal("Could not add treasury snapshot cron job")
	}

	s.cronEngine.Start()
	s.logger.Info("Treasury scheduler started.")
}

func (s *TreasuryScheduler) Stop() {
	s.logger.Info("Stopping treasury scheduler...")
	ctx := s.cronEngine.Stop() // Stops scheduling new jobs, returns context for running jobs
	select {
	case <-ctx.Done():
		s.logger.Info("All running scheduler jobs completed.")
	case <-time.After(30 * time.Second):
		s.logger.Warn("Scheduler jobs did not complete within 30s timeout.")
	}
}
