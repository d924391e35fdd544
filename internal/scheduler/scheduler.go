// Package scheduler runs the external rate sync on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/cuotificador/internal/models"
	"github.com/Dan9191/cuotificador/internal/permissions"
)

// Syncer runs a full external rate sync
type Syncer interface {
	SyncAll(ctx context.Context) (models.SyncReport, error)
}

// Notifier delivers sync reports
type Notifier interface {
	SendSyncReport(to string, report models.SyncReport) error
}

// Scheduler triggers Syncer on a cron expression and mails the report
type Scheduler struct {
	cron     *cron.Cron
	syncer   Syncer
	notifier Notifier
	reportTo string
	timeout  time.Duration
	log      *logrus.Logger
}

// New creates a scheduler. Reports are mailed only when notifier is set and reportTo is not empty.
func New(syncer Syncer, notifier Notifier, reportTo string, log *logrus.Logger) *Scheduler {
	logger := cron.PrintfLogger(log)
	return &Scheduler{
		cron:     cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		syncer:   syncer,
		notifier: notifier,
		reportTo: reportTo,
		timeout:  10 * time.Minute,
		log:      log,
	}
}

// Start schedules the sync with a standard five-field cron spec
func (s *Scheduler) Start(spec string) error {
	if _, err := s.cron.AddFunc(spec, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			s.log.Errorf("Scheduled rate sync failed: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule rate sync %q: %w", spec, err)
	}
	s.cron.Start()
	s.log.Infof("Rate sync scheduled: %s", spec)
	return nil
}

// Stop stops scheduling and waits for a running sync to finish or ctx to end
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("Scheduler stopped while a rate sync was still running")
	}
}

// RunOnce syncs all banks as the system principal and mails the report
func (s *Scheduler) RunOnce(ctx context.Context) (models.SyncReport, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx = permissions.WithPrincipal(ctx, permissions.System(permissions.SyncExternal))

	report, err := s.syncer.SyncAll(ctx)
	if err != nil {
		return report, err
	}

	if s.notifier != nil && s.reportTo != "" {
		if err := s.notifier.SendSyncReport(s.reportTo, report); err != nil {
			s.log.Warnf("Sync report not delivered: %v", err)
		}
	}
	return report, nil
}
