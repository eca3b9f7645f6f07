package ussd

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ent0n29/mamashield/internal/culture"
	"github.com/ent0n29/mamashield/internal/lang"
	"github.com/ent0n29/mamashield/internal/metrics"
	"github.com/ent0n29/mamashield/internal/notify"
	"github.com/ent0n29/mamashield/internal/privacy"
	"github.com/ent0n29/mamashield/internal/risk"
	"github.com/ent0n29/mamashield/internal/smstext"
	"github.com/ent0n29/mamashield/internal/triage"
	"github.com/ent0n29/mamashield/internal/userstore"
)

const (
	welcomeMenu = "CON Karibu MamaShield!\n" +
		"1. Ask a health question\n" +
		"2. Nutrition advice\n" +
		"3. Register as tea farm worker\n" +
		"4. Change language\n" +
		"0. Exit"
	askPrompt     = "CON Type your health question:"
	languageMenu  = "CON Choose language:\n1. English\n2. Kiswahili\n3. Kalenjin"
	teaRegistered = "END Karibu MamaShield! You are registered for tea farm health tips."
	exitScreen    = "END Asante! Stay healthy."
	invalidChoice = "END Invalid choice. Please dial again."
	errorScreen   = "END Sorry, technical issue. Please try again later."

	signsExcerptLimit = 50
)

// FlowOptions wire the menu's collaborators.
type FlowOptions struct {
	Sessions   *Manager
	Users      userstore.Store
	Assessor   *risk.Assessor
	Detector   triage.Detector
	Dispatcher *notify.Dispatcher
	Sink       *metrics.Sink
	Logger     *zap.Logger
}

// Flow renders the USSD menu tree and runs the same danger triage and risk
// assessment the SMS pipeline does, squeezed onto a 160-character screen.
type Flow struct {
	sessions *Manager
	users    userstore.Store
	assessor *risk.Assessor
	detector triage.Detector
	dispatch *notify.Dispatcher
	sink     *metrics.Sink
	logger   *zap.Logger
}

func NewFlow(opts FlowOptions) *Flow {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Flow{
		sessions: opts.Sessions,
		users:    opts.Users,
		assessor: opts.Assessor,
		detector: opts.Detector,
		dispatch: opts.Dispatcher,
		sink:     opts.Sink,
		logger:   logger,
	}
	f.sessions.SetExpireHook(func(Session) {
		f.sink.Record(context.Background(), metrics.EventUSSDSession,
			map[string]string{"outcome": "expired"})
	})
	return f
}

// Handle answers one gateway callback. chain is the *-joined input history
// for the session, empty on the first screen.
func (f *Flow) Handle(ctx context.Context, sessionID, phone, chain string) string {
	f.sessions.Ensure(sessionID, phone)

	steps := parseChain(chain)
	if len(steps) == 0 {
		return welcomeMenu
	}

	switch steps[0] {
	case "1":
		if len(steps) == 1 {
			return askPrompt
		}
		return f.answerQuestion(ctx, sessionID, phone, strings.Join(steps[1:], "*"))
	case "2":
		return f.complete(ctx, sessionID, "END "+smstext.Frame(culture.FoodAdvice(), smstext.MaxUSSDLen))
	case "3":
		return f.registerTeaWorker(ctx, sessionID, phone)
	case "4":
		if len(steps) == 1 {
			return languageMenu
		}
		return f.changeLanguage(ctx, sessionID, phone, steps[1])
	case "0":
		return f.complete(ctx, sessionID, exitScreen)
	default:
		return f.complete(ctx, sessionID, invalidChoice)
	}
}

func (f *Flow) answerQuestion(ctx context.Context, sessionID, phone, question string) string {
	question = strings.TrimSpace(question)
	if question == "" {
		return askPrompt
	}

	phoneHash := privacy.HashPhone(phone)
	user, err := f.users.GetOrCreate(ctx, phoneHash)
	if err != nil {
		f.logger.Error("ussd user load failed", zap.Error(err))
		return f.fail(ctx, sessionID)
	}

	if danger, warning := f.detector.Detect(question, user.Language); danger {
		f.sink.Record(ctx, metrics.EventDangerFlag, map[string]string{"language": string(user.Language)})
		f.dispatch.AlertCHW(ctx, phone, smstext.Clip(question, signsExcerptLimit), notify.Location(user.TeaFarmWorker))
		f.appendExchange(ctx, phoneHash, question, warning)
		return f.complete(ctx, sessionID, "END "+smstext.Frame(warning, smstext.MaxUSSDLen))
	}

	res := f.assessor.Assess(ctx, risk.Input{
		History:        risk.History(user.History),
		Message:        question,
		Language:       user.Language,
		PregnancyWeeks: user.PregnancyWeeks,
	})
	if res.RiskLevel > 0.6 {
		signs := smstext.Clip(question, signsExcerptLimit)
		if res.Reason != "" {
			signs += " - " + res.Reason
		}
		f.dispatch.AlertCHW(ctx, phone, signs, notify.Location(user.TeaFarmWorker))
	}

	f.appendExchange(ctx, phoneHash, question, res.ResponseText)
	return f.complete(ctx, sessionID, "END "+smstext.Frame(res.ResponseText, smstext.MaxUSSDLen))
}

func (f *Flow) registerTeaWorker(ctx context.Context, sessionID, phone string) string {
	phoneHash := privacy.HashPhone(phone)
	if _, err := f.users.GetOrCreate(ctx, phoneHash); err != nil {
		f.logger.Error("ussd user load failed", zap.Error(err))
		return f.fail(ctx, sessionID)
	}

	kal := lang.Kalenjin
	tea := true
	if err := f.users.Update(ctx, phoneHash, userstore.Patch{Language: &kal, TeaFarmWorker: &tea}); err != nil {
		f.logger.Error("ussd tea registration failed", zap.Error(err))
		return f.fail(ctx, sessionID)
	}

	f.sink.Record(ctx, metrics.EventTeaRegistration, map[string]string{"language": string(kal)})
	f.dispatch.TrackFarmEngagement(ctx, "onboarding")
	return f.complete(ctx, sessionID, teaRegistered)
}

func (f *Flow) changeLanguage(ctx context.Context, sessionID, phone, choice string) string {
	chosen, confirmation := languageChoice(choice)
	if confirmation == "" {
		return f.complete(ctx, sessionID, invalidChoice)
	}

	phoneHash := privacy.HashPhone(phone)
	if _, err := f.users.GetOrCreate(ctx, phoneHash); err != nil {
		f.logger.Error("ussd user load failed", zap.Error(err))
		return f.fail(ctx, sessionID)
	}
	if err := f.users.Update(ctx, phoneHash, userstore.Patch{Language: &chosen}); err != nil {
		f.logger.Error("ussd language change failed", zap.Error(err))
		return f.fail(ctx, sessionID)
	}
	return f.complete(ctx, sessionID, confirmation)
}

// complete ends the session behind a terminal screen.
func (f *Flow) complete(ctx context.Context, sessionID, screen string) string {
	f.sessions.End(sessionID)
	f.sink.Record(ctx, metrics.EventUSSDSession, map[string]string{"outcome": "completed"})
	return screen
}

func (f *Flow) fail(ctx context.Context, sessionID string) string {
	f.sessions.End(sessionID)
	f.sink.Record(ctx, metrics.EventUSSDSession, map[string]string{"outcome": "error"})
	return errorScreen
}

// appendExchange mirrors the SMS history pair so later SMS turns carry the
// USSD context. The screen already rendered, so failures only log.
func (f *Flow) appendExchange(ctx context.Context, phoneHash, question, answer string) {
	if err := f.users.AppendHistory(ctx, phoneHash, userstore.RoleUser, question); err != nil {
		f.logger.Error("history append failed", zap.Error(err))
	}
	if err := f.users.AppendHistory(ctx, phoneHash, userstore.RoleAssistant, answer); err != nil {
		f.logger.Error("history append failed", zap.Error(err))
	}
}

func languageChoice(choice string) (lang.Language, string) {
	switch strings.TrimSpace(choice) {
	case "1":
		return lang.English, "END Language updated to English."
	case "2":
		return lang.Swahili, "END Lugha imebadilishwa kuwa Kiswahili."
	case "3":
		return lang.Kalenjin, "END Kongoi! Language set to Kalenjin."
	}
	return "", ""
}

func parseChain(chain string) []string {
	chain = strings.TrimSpace(chain)
	if chain == "" {
		return nil
	}
	return strings.Split(chain, "*")
}
