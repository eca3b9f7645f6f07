// Package metrics records program-impact events: the counts cooperative
// partners and health programs report on. Distinct from the Prometheus
// instruments in internal/observability, which watch the service itself.
package metrics

import (
	"context"
	"time"
)

// Event types recorded by the pipeline and dispatcher.
const (
	EventMessageReceived    = "message_received"
	EventMessageSent        = "message_sent"
	EventDangerFlag         = "danger_flag"
	EventANCPollYes         = "anc_poll_yes"
	EventANCPollNo          = "anc_poll_no"
	EventFeedbackPositive   = "feedback_positive"
	EventFeedbackNegative   = "feedback_negative"
	EventFeedbackPollSent   = "feedback_poll_sent"
	EventCHWReferral        = "chw_referral"
	EventFarmClinicReferral = "farm_clinic_referral"
	EventANCVisitConfirmed  = "anc_visit_confirmed"
	EventTeaRegistration    = "tea_registration"
	EventTeaFarmEngagement  = "tea_farm_engagement"
	EventUSSDSession        = "ussd_session"
)

// Event is one impact record. Details never contain raw phone numbers.
type Event struct {
	ID      string            `json:"id"`
	Type    string            `json:"event_type"`
	Count   int               `json:"count"`
	Details map[string]string `json:"details,omitempty"`
	At      time.Time         `json:"timestamp"`
}

// Store persists impact events.
type Store interface {
	Append(ctx context.Context, e Event) error
	Since(ctx context.Context, from time.Time) ([]Event, error)
	Close() error
}
