// Package pipeline drives one inbound SMS turn: classify, act, reply.
// Every turn for a given user runs under a per-phone-hash lock so history
// appends and counter bumps never race between gateway deliveries.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/mamashield/internal/lang"
	"github.com/ent0n29/mamashield/internal/metrics"
	"github.com/ent0n29/mamashield/internal/notify"
	"github.com/ent0n29/mamashield/internal/observability"
	"github.com/ent0n29/mamashield/internal/privacy"
	"github.com/ent0n29/mamashield/internal/risk"
	"github.com/ent0n29/mamashield/internal/sms"
	"github.com/ent0n29/mamashield/internal/smstext"
	"github.com/ent0n29/mamashield/internal/triage"
	"github.com/ent0n29/mamashield/internal/userstore"
)

// Turn statuses reported to the webhook.
const (
	StatusSuccess          = "success"
	StatusDangerAlertSent  = "danger_alert_sent"
	StatusANCPollResponse  = "anc_poll_response"
	StatusFeedbackRecorded = "feedback_recorded"
	StatusTeaRegistration  = "tea_registration"
	StatusError            = "error"
)

const (
	farmInvite     = "Are you a tea farm worker? Reply TEA for farm health tips."
	feedbackPoll   = "Was this helpful? Reply HELPFUL or NOT HELPFUL."
	ancPoll        = "Did you attend ANC this month? Reply Y for yes, N for no."
	ancYesReply    = "Great! Keep attending your ANC visits. Your health matters!"
	ancNoReply     = "Please visit your clinic soon for ANC checkup. It's important for you and baby."
	feedbackThanks = "Thank you for your feedback! MamaShield is here for you and baby."
	teaWelcome     = "Karibu MamaShield! You are registered for tea farm health tips."

	farmTipCadenceLimit = 100
	signsExcerptLimit   = 50
)

// Outcome is the result of one handled turn.
type Outcome struct {
	Status string
	Reply  string
}

// Options wire the orchestrator's collaborators.
type Options struct {
	Users           userstore.Store
	Assessor        *risk.Assessor
	Detector        triage.Detector
	Sender          sms.Sender
	Dispatcher      *notify.Dispatcher
	Sink            *metrics.Sink
	Observability   *observability.Metrics
	EmergencyNumber string
	Logger          *zap.Logger
}

// Orchestrator runs the per-turn decision tree.
type Orchestrator struct {
	users     userstore.Store
	assessor  *risk.Assessor
	detector  triage.Detector
	sender    sms.Sender
	dispatch  *notify.Dispatcher
	sink      *metrics.Sink
	obs       *observability.Metrics
	emergency string
	logger    *zap.Logger
	locks     *keyedMutex
}

func NewOrchestrator(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	emergency := strings.TrimSpace(opts.EmergencyNumber)
	if emergency == "" {
		emergency = "1195"
	}
	return &Orchestrator{
		users:     opts.Users,
		assessor:  opts.Assessor,
		detector:  opts.Detector,
		sender:    opts.Sender,
		dispatch:  opts.Dispatcher,
		sink:      opts.Sink,
		obs:       opts.Observability,
		emergency: emergency,
		logger:    logger,
		locks:     newKeyedMutex(),
	}
}

// Handle processes one inbound message. An error means the user got no
// reply; the webhook layer owns the apology in that case.
func (o *Orchestrator) Handle(ctx context.Context, phone, text string) (Outcome, error) {
	phoneHash := privacy.HashPhone(phone)
	unlock := o.locks.lock(phoneHash)
	defer unlock()

	turnStart := time.Now()
	defer func() { o.obs.ObserveStage("turn_total", time.Since(turnStart)) }()

	o.sink.Record(ctx, metrics.EventMessageReceived, nil)

	user, err := o.users.GetOrCreate(ctx, phoneHash)
	if err != nil {
		return Outcome{}, fmt.Errorf("load user: %w", err)
	}

	trimmed := strings.TrimSpace(text)
	upper := strings.ToUpper(trimmed)

	var out Outcome
	switch {
	case upper == "TEA":
		out, err = o.handleTeaRegistration(ctx, phone, user, trimmed)
	case isFeedback(upper):
		out, err = o.handleFeedback(ctx, phone, user, trimmed, upper)
	case isPollReply(upper):
		out, err = o.handlePollReply(ctx, phone, user, trimmed, upper)
	default:
		triageStart := time.Now()
		danger, warning := o.detector.Detect(trimmed, user.Language)
		o.obs.ObserveStage("triage", time.Since(triageStart))

		if danger {
			out, err = o.handleDanger(ctx, phone, user, trimmed, warning)
		} else {
			out, err = o.handleQuestion(ctx, phone, user, trimmed)
		}
	}
	if err != nil {
		return Outcome{}, err
	}

	if o.obs != nil {
		o.obs.RepliesSent.WithLabelValues(out.Status).Inc()
	}
	return out, nil
}

func (o *Orchestrator) handleTeaRegistration(ctx context.Context, phone string, user userstore.User, text string) (Outcome, error) {
	kal := lang.Kalenjin
	tea := true
	if err := o.users.Update(ctx, user.PhoneHash, userstore.Patch{Language: &kal, TeaFarmWorker: &tea}); err != nil {
		return Outcome{}, fmt.Errorf("register tea worker: %w", err)
	}

	o.sink.Record(ctx, metrics.EventTeaRegistration, map[string]string{"language": string(kal)})
	o.dispatch.TrackFarmEngagement(ctx, "onboarding")

	reply := smstext.Frame(teaWelcome+" "+notify.FarmTip("picking", kal), smstext.MaxSMSLen)
	o.send(ctx, phone, reply, kal)
	o.appendPair(ctx, user.PhoneHash, userstore.RoleUser, text, reply)
	return Outcome{Status: StatusTeaRegistration, Reply: reply}, nil
}

func (o *Orchestrator) handleFeedback(ctx context.Context, phone string, user userstore.User, text, upper string) (Outcome, error) {
	event := metrics.EventFeedbackNegative
	if positiveFeedback(upper) {
		event = metrics.EventFeedbackPositive
	}
	o.sink.Record(ctx, event, map[string]string{"language": string(user.Language)})

	reply := feedbackThanks
	o.send(ctx, phone, reply, user.Language)
	o.appendPair(ctx, user.PhoneHash, userstore.RoleFeedback, text, reply)
	return Outcome{Status: StatusFeedbackRecorded, Reply: reply}, nil
}

func (o *Orchestrator) handlePollReply(ctx context.Context, phone string, user userstore.User, text, upper string) (Outcome, error) {
	var reply string
	if upper == "Y" || upper == "YES" {
		o.sink.Record(ctx, metrics.EventANCPollYes, map[string]string{"language": string(user.Language)})
		o.dispatch.SendANCThankYou(ctx, phone, user.Language)
		if user.TeaFarmWorker {
			o.dispatch.TrackFarmEngagement(ctx, "anc_visit")
		}
		reply = ancYesReply
	} else {
		o.sink.Record(ctx, metrics.EventANCPollNo, map[string]string{"language": string(user.Language)})
		reply = ancNoReply
	}

	o.send(ctx, phone, reply, user.Language)
	o.appendPair(ctx, user.PhoneHash, userstore.RoleUser, text, reply)
	return Outcome{Status: StatusANCPollResponse, Reply: reply}, nil
}

func (o *Orchestrator) handleDanger(ctx context.Context, phone string, user userstore.User, text, warning string) (Outcome, error) {
	o.sink.Record(ctx, metrics.EventDangerFlag, map[string]string{"language": string(user.Language)})

	reply := smstext.Frame(warning, smstext.MaxSMSLen)
	o.send(ctx, phone, reply, user.Language)

	o.dispatch.AlertCHW(ctx, phone, smstext.Clip(text, signsExcerptLimit), notify.Location(user.TeaFarmWorker))
	if user.TeaFarmWorker {
		o.dispatch.ReferToFarmClinic(ctx, phone, "urgent danger sign check")
	}

	o.appendPair(ctx, user.PhoneHash, userstore.RoleUser, text, reply)
	return Outcome{Status: StatusDangerAlertSent, Reply: reply}, nil
}

func (o *Orchestrator) handleQuestion(ctx context.Context, phone string, user userstore.User, text string) (Outcome, error) {
	assessStart := time.Now()
	res := o.assessor.Assess(ctx, risk.Input{
		History:        risk.History(user.History),
		Message:        text,
		Language:       user.Language,
		PregnancyWeeks: user.PregnancyWeeks,
	})
	o.obs.ObserveStage("assess", time.Since(assessStart))

	reply := res.ResponseText

	if res.RiskLevel > 0.6 {
		signs := smstext.Clip(text, signsExcerptLimit)
		if res.Reason != "" {
			signs += " - " + res.Reason
		}
		o.dispatch.AlertCHW(ctx, phone, signs, notify.Location(user.TeaFarmWorker))
	}
	if res.RiskLevel > 0.8 || res.RecommendedAction == risk.ActionEmergency {
		reply = fmt.Sprintf("URGENT: Go to clinic NOW or call %s. ", o.emergency) + reply
	}

	count, err := o.users.IncrementInteractions(ctx, user.PhoneHash)
	if err != nil {
		return Outcome{}, fmt.Errorf("increment interactions: %w", err)
	}

	reply = o.applyCadence(ctx, reply, count, user.TeaFarmWorker, user.Language)
	reply = smstext.Frame(reply, smstext.MaxSMSLen)

	o.send(ctx, phone, reply, user.Language)

	persistStart := time.Now()
	o.appendPair(ctx, user.PhoneHash, userstore.RoleUser, text, reply)
	o.obs.ObserveStage("persist", time.Since(persistStart))

	return Outcome{Status: StatusSuccess, Reply: reply}, nil
}

// applyCadence appends at most one poll plus, independently for tea
// workers, a farm tip.
func (o *Orchestrator) applyCadence(ctx context.Context, reply string, count int, teaWorker bool, language lang.Language) string {
	switch {
	case count == 1:
		reply += " " + farmInvite
	case count%5 == 0:
		reply += " " + feedbackPoll
		o.sink.Record(ctx, metrics.EventFeedbackPollSent, map[string]string{"language": string(language)})
	case count%4 == 0:
		reply += " " + ancPoll
	}
	if teaWorker && count%3 == 0 {
		reply += " " + smstext.Clip(notify.FarmTip("picking", language), farmTipCadenceLimit)
	}
	return reply
}

func (o *Orchestrator) send(ctx context.Context, phone, reply string, language lang.Language) {
	sendStart := time.Now()
	err := o.sender.Send(ctx, phone, reply)
	o.obs.ObserveStage("send", time.Since(sendStart))
	if err != nil {
		o.logger.Warn("reply send failed",
			zap.String("to", privacy.MaskPhone(phone)),
			zap.Error(err))
		return
	}
	o.sink.Record(ctx, metrics.EventMessageSent, map[string]string{"language": string(language)})
}

// appendPair stores the user's message and the reply. The reply already
// left the gateway at this point, so failures only log.
func (o *Orchestrator) appendPair(ctx context.Context, phoneHash string, userRole userstore.Role, userText, reply string) {
	if err := o.users.AppendHistory(ctx, phoneHash, userRole, userText); err != nil {
		o.logger.Error("history append failed", zap.Error(err))
	}
	if err := o.users.AppendHistory(ctx, phoneHash, userstore.RoleAssistant, reply); err != nil {
		o.logger.Error("history append failed", zap.Error(err))
	}
}

func isPollReply(upper string) bool {
	switch upper {
	case "Y", "YES", "N", "NO":
		return true
	}
	return false
}

// isFeedback matches explicit feedback plus short affirmations, but never
// an exact poll reply, which the poll branch owns.
func isFeedback(upper string) bool {
	if isPollReply(upper) {
		return false
	}
	if strings.Contains(upper, "HELPFUL") {
		return true
	}
	if len(upper) <= 12 &&
		(strings.Contains(upper, "HELP") || strings.Contains(upper, "YES") || strings.Contains(upper, "NO")) {
		return true
	}
	return false
}

func positiveFeedback(upper string) bool {
	if strings.Contains(upper, "NOT") || upper == "N" || upper == "NO" {
		return false
	}
	return strings.Contains(upper, "YES") || strings.Contains(upper, "HELPFUL") ||
		strings.Contains(upper, "GOOD") || upper == "Y"
}
