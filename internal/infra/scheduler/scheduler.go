package scheduler

import (
	"context"
	"time"

	"rate_change_notifier/internal/app"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ReminderScheduler logs a weekday-morning summary of clients still pending
// for the current rate-change year, so the team sees outstanding
// notifications without opening the dashboard.
type ReminderScheduler struct {
	cronEngine *cron.Cron
	views      *app.ViewService
	log        *logrus.Entry
	cronSpec   string
}

func NewReminderScheduler(views *app.ViewService, log *logrus.Entry, cronSpec string) *ReminderScheduler {
	return &ReminderScheduler{
		cronEngine: cron.New(cron.WithLocation(time.Local)),
		views:      views,
		log:        log,
		cronSpec:   cronSpec,
	}
}

func (s *ReminderScheduler) Start() error {
	_, err := s.cronEngine.AddFunc(s.cronSpec, s.logPendingSummary)
	if err != nil {
		return err
	}
	s.cronEngine.Start()
	s.log.Infof("Pending-reminder scheduler started with spec %q", s.cronSpec)
	return nil
}

func (s *ReminderScheduler) logPendingSummary() {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
	defer cancel()

	year := time.Now().Year()
	view, err := s.views.GetYearView(ctx, year, "", nil)
	if err != nil {
		s.log.Errorf("Pending-reminder check failed for %d: %v", year, err)
		return
	}
	if view.Stats.Pending == 0 {
		s.log.Infof("Rate-change notifications for %d all actioned (%d clients)", year, view.Stats.Total)
		return
	}
	s.log.Warnf("Rate-change notifications for %d: %d of %d clients still pending (%d sent, %d not applicable)",
		year, view.Stats.Pending, view.Stats.Total, view.Stats.Sent, view.Stats.NotApplicable)
}

func (s *ReminderScheduler) Stop() {
	ctx := s.cronEngine.Stop()
	<-ctx.Done()
	s.log.Info("Pending-reminder scheduler stopped")
}
