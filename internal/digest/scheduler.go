package digest

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ent0n29/mamashield/internal/metrics"
	"github.com/ent0n29/mamashield/internal/privacy"
	"github.com/ent0n29/mamashield/internal/sms"
)

const (
	defaultCronSpec = "0 6 * * *"
	runTimeout      = 30 * time.Second
)

// SchedulerOptions wire the daily digest job.
type SchedulerOptions struct {
	Store  metrics.Store
	Sender sms.Sender
	// Phone is the program lead's number. Empty means log-only digests.
	Phone    string
	CronSpec string
	Logger   *zap.Logger
}

// Scheduler sends the digest on a cron schedule, UTC.
type Scheduler struct {
	cron   *cron.Cron
	store  metrics.Store
	sender sms.Sender
	phone  string
	spec   string
	logger *zap.Logger
}

func NewScheduler(opts SchedulerOptions) *Scheduler {
	spec := opts.CronSpec
	if spec == "" {
		spec = defaultCronSpec
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		store:  opts.Store,
		sender: opts.Sender,
		phone:  opts.Phone,
		spec:   spec,
		logger: logger,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.Run); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("digest scheduler started", zap.String("spec", s.spec))
	return nil
}

// Stop waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("digest scheduler stopped")
}

// Run builds and delivers one digest covering the trailing 24 hours. Exposed
// so the ops CLI can trigger a digest outside the schedule.
func (s *Scheduler) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	now := time.Now().UTC()
	events, err := s.store.Since(ctx, now.Add(-24*time.Hour))
	if err != nil {
		s.logger.Error("digest query failed", zap.Error(err))
		return
	}

	message := Summarize(events, now).SMS()
	if s.phone == "" {
		s.logger.Info("daily digest", zap.String("summary", message))
		return
	}
	if err := s.sender.Send(ctx, s.phone, message); err != nil {
		s.logger.Error("digest send failed",
			zap.String("to", privacy.MaskPhone(s.phone)),
			zap.Error(err))
		return
	}
	s.logger.Info("daily digest sent", zap.Int("events", len(events)))
}
