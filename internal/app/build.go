// Package app assembles the service graph from configuration. It is the
// single place where concrete store, model and sender implementations are
// chosen, so main and the ops CLI stay thin.
package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ent0n29/mamashield/internal/alertfeed"
	"github.com/ent0n29/mamashield/internal/config"
	"github.com/ent0n29/mamashield/internal/digest"
	"github.com/ent0n29/mamashield/internal/httpapi"
	"github.com/ent0n29/mamashield/internal/lang"
	"github.com/ent0n29/mamashield/internal/llm"
	"github.com/ent0n29/mamashield/internal/metrics"
	"github.com/ent0n29/mamashield/internal/notify"
	"github.com/ent0n29/mamashield/internal/observability"
	"github.com/ent0n29/mamashield/internal/pipeline"
	"github.com/ent0n29/mamashield/internal/risk"
	"github.com/ent0n29/mamashield/internal/sms"
	"github.com/ent0n29/mamashield/internal/triage"
	"github.com/ent0n29/mamashield/internal/userstore"
	"github.com/ent0n29/mamashield/internal/ussd"
)

// BuildResult holds the wired components main needs to run and shut down
// the service.
type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Sessions *ussd.Manager
	// Digest is nil when DIGEST_CRON is empty.
	Digest  *digest.Scheduler
	Metrics *observability.Metrics
	Ready   httpapi.ReadyInfo

	// Cleanup releases the stores and stops the digest schedule.
	Cleanup func() error
}

// Build wires stores, the model client, triage, messaging and the HTTP
// surface into a ready-to-serve result.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	obs := observability.NewMetrics(cfg.MetricsNamespace)

	defaultLang := lang.ParseOrDefault(cfg.DefaultLanguage, lang.English)
	users, err := userstore.New(ctx, cfg.DatabaseURL, defaultLang)
	if err != nil {
		return nil, fmt.Errorf("user store init failed: %w", err)
	}

	events, err := metrics.New(ctx, cfg.DatabaseURL)
	if err != nil {
		_ = users.Close()
		return nil, fmt.Errorf("metric store init failed: %w", err)
	}

	feed := alertfeed.NewHub()
	feed.SetCountHook(func(n int) { obs.FeedSubscribers.Set(float64(n)) })
	sink := metrics.NewSink(events, feed, obs, logger.Named("metrics"))

	var completer llm.Completer
	models := cfg.AIModels
	if cfg.AIUseMock {
		completer = llm.NewMock()
		models = []string{"mock"}
	} else {
		completer = llm.NewClient(llm.Options{
			APIKey:          cfg.AIAPIKey,
			BaseURL:         cfg.AIBaseURL,
			Models:          cfg.AIModels,
			Timeout:         cfg.AITimeout,
			EmergencyNumber: cfg.EmergencyNumber,
			Disclaimer:      cfg.SMSDisclaimer,
			Metrics:         obs,
			Logger:          logger.Named("llm"),
		})
	}

	assessor := risk.NewAssessor(completer, obs, logger.Named("risk"))
	detector := triage.NewDetector(cfg.EmergencyNumber, cfg.SMSDisclaimer)

	var sender sms.Sender
	senderKind := "africastalking"
	if cfg.SMSUseMock {
		sender = sms.NewMockSender()
		senderKind = "mock"
	} else {
		sender = sms.NewClient(sms.Options{
			Username: cfg.ATUsername,
			APIKey:   cfg.ATAPIKey,
			BaseURL:  cfg.ATBaseURL,
			SenderID: cfg.ATSenderID,
			Timeout:  cfg.SMSTimeout,
			Metrics:  obs,
			Logger:   logger.Named("sms"),
		})
	}

	dispatcher := notify.NewDispatcher(sender, sink, notify.Config{
		CHWPhone:         cfg.CHWPhone,
		TeaCHWPhone:      cfg.TeaCHWPhone,
		FarmClinicNumber: cfg.FarmClinicNumber,
	}, logger.Named("notify"))

	orchestrator := pipeline.NewOrchestrator(pipeline.Options{
		Users:           users,
		Assessor:        assessor,
		Detector:        detector,
		Sender:          sender,
		Dispatcher:      dispatcher,
		Sink:            sink,
		Observability:   obs,
		EmergencyNumber: cfg.EmergencyNumber,
		Logger:          logger.Named("pipeline"),
	})

	sessions := ussd.NewManager(cfg.USSDSessionTimeout, obs)
	flow := ussd.NewFlow(ussd.FlowOptions{
		Sessions:   sessions,
		Users:      users,
		Assessor:   assessor,
		Detector:   detector,
		Dispatcher: dispatcher,
		Sink:       sink,
		Logger:     logger.Named("ussd"),
	})

	var digestJob *digest.Scheduler
	if strings.TrimSpace(cfg.DigestCron) != "" {
		digestJob = digest.NewScheduler(digest.SchedulerOptions{
			Store:    events,
			Sender:   sender,
			Phone:    cfg.ProgramLeadPhone,
			CronSpec: cfg.DigestCron,
			Logger:   logger.Named("digest"),
		})
	}

	storeKind := "memory"
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		storeKind = "postgres"
	}
	ready := httpapi.ReadyInfo{StoreKind: storeKind, SenderKind: senderKind, Models: models}

	api := httpapi.New(httpapi.Options{
		Pipeline:        orchestrator,
		Flow:            flow,
		Sender:          sender,
		Feed:            feed,
		Metrics:         obs,
		Logger:          logger.Named("http"),
		EmergencyNumber: cfg.EmergencyNumber,
		RateLimit:       cfg.SMSRateLimit,
		Ready:           ready,
	})

	cleanup := func() error {
		var errs []string
		if digestJob != nil {
			digestJob.Stop()
		}
		if err := events.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := users.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Sessions: sessions,
		Digest:   digestJob,
		Metrics:  obs,
		Ready:    ready,
		Cleanup:  cleanup,
	}, nil
}
