// Package notify sends the side-channel messages around a turn: CHW
// alerts, farm clinic referrals, and ANC reinforcement. Deliveries are
// best-effort; a failed alert never breaks the reply that triggered it.
package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ent0n29/mamashield/internal/lang"
	"github.com/ent0n29/mamashield/internal/metrics"
	"github.com/ent0n29/mamashield/internal/privacy"
	"github.com/ent0n29/mamashield/internal/sms"
	"github.com/ent0n29/mamashield/internal/smstext"
)

// Location labels attached to CHW alerts.
const (
	LocationTeaZone = "Mulot tea zone"
	LocationDefault = "Bomet area"
)

// Location maps the tea-worker flag to the alert location label.
func Location(teaWorker bool) string {
	if teaWorker {
		return LocationTeaZone
	}
	return LocationDefault
}

const thankYouKal = "Kongoi! (Thank you!) Great job attending ANC. Keep it up for healthy pregnancy! Drink mwaiti and rest well."
const thankYouEN = "Thank you for attending ANC! You're taking great care of yourself and baby. Keep going to all visits!"

// Config holds the program phone numbers.
type Config struct {
	CHWPhone         string
	TeaCHWPhone      string
	FarmClinicNumber string
}

// Dispatcher fans out notifications. Methods report whether anything was
// delivered; send errors are logged and swallowed.
type Dispatcher struct {
	sender sms.Sender
	sink   *metrics.Sink
	cfg    Config
	logger *zap.Logger
}

func NewDispatcher(sender sms.Sender, sink *metrics.Sink, cfg Config, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{sender: sender, sink: sink, cfg: cfg, logger: logger}
}

// AlertCHW notifies the community health workers about a high-risk case.
// The user appears only as the last 4 digits; signs are scrubbed of any
// embedded phone numbers before leaving the service.
func (d *Dispatcher) AlertCHW(ctx context.Context, phone, signs, location string) bool {
	if location == "" {
		location = LocationTeaZone
	}
	cleanSigns, _ := privacy.Scrub(signs)

	message := fmt.Sprintf(
		"ALERT: High-risk pregnancy reported. Masked user %s mentioned %s. Contact urgently. Location area: %s.",
		privacy.MaskPhone(phone), cleanSigns, location,
	)

	delivered := d.deliver(ctx, d.cfg.CHWPhone, message, "chw alert")
	if d.cfg.TeaCHWPhone != "" {
		if d.deliver(ctx, d.cfg.TeaCHWPhone, message, "tea chw alert") {
			delivered = true
		}
	}

	d.sink.Record(ctx, metrics.EventCHWReferral, map[string]string{
		"location": location,
		"signs":    smstext.Clip(cleanSigns, 50),
	})
	return delivered
}

// ReferToFarmClinic books urgent follow-up at the tea estate clinic.
// No-op when no clinic number is configured.
func (d *Dispatcher) ReferToFarmClinic(ctx context.Context, phone, reason string) bool {
	if d.cfg.FarmClinicNumber == "" {
		return false
	}
	if reason == "" {
		reason = "ANC checkup"
	}

	message := fmt.Sprintf(
		"Referral: Pregnant woman from tea estate needs %s. Contact %s for appointment. MamaShield AI referral.",
		reason, privacy.MaskPhone(phone),
	)
	delivered := d.deliver(ctx, d.cfg.FarmClinicNumber, message, "farm clinic referral")

	d.sink.Record(ctx, metrics.EventFarmClinicReferral, map[string]string{"reason": reason})
	return delivered
}

// SendANCThankYou reinforces a confirmed ANC visit.
func (d *Dispatcher) SendANCThankYou(ctx context.Context, phone string, language lang.Language) bool {
	message := thankYouEN
	if language == lang.Kalenjin {
		message = thankYouKal
	}
	delivered := d.deliver(ctx, phone, message, "anc thank-you")

	d.sink.Record(ctx, metrics.EventANCVisitConfirmed, map[string]string{
		"language": string(language),
	})
	return delivered
}

// TrackFarmEngagement records tea-farm program activity for the
// cooperative partnership reports.
func (d *Dispatcher) TrackFarmEngagement(ctx context.Context, activity string) {
	d.sink.Record(ctx, metrics.EventTeaFarmEngagement, map[string]string{
		"activity":             activity,
		"partnership_tracking": "true",
	})
}

func (d *Dispatcher) deliver(ctx context.Context, phone, message, kind string) bool {
	if phone == "" {
		return false
	}
	if err := d.sender.Send(ctx, phone, message); err != nil {
		d.logger.Error("notification send failed",
			zap.String("kind", kind),
			zap.String("to", privacy.MaskPhone(phone)),
			zap.Error(err))
		return false
	}
	return true
}
