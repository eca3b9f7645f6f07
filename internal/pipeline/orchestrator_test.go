package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ent0n29/mamashield/internal/lang"
	"github.com/ent0n29/mamashield/internal/llm"
	"github.com/ent0n29/mamashield/internal/metrics"
	"github.com/ent0n29/mamashield/internal/notify"
	"github.com/ent0n29/mamashield/internal/privacy"
	"github.com/ent0n29/mamashield/internal/risk"
	"github.com/ent0n29/mamashield/internal/sms"
	"github.com/ent0n29/mamashield/internal/triage"
	"github.com/ent0n29/mamashield/internal/userstore"
)

const (
	testUserPhone = "+254712345678"
	testCHWPhone  = "+254700000100"
	testClinic    = "+254700000200"
)

type testEnv struct {
	orch   *Orchestrator
	users  *userstore.InMemoryStore
	model  *llm.Mock
	sender *sms.MockSender
	events *metrics.InMemoryStore
}

func newEnv() *testEnv {
	users := userstore.NewInMemoryStore(lang.English)
	model := llm.NewMock()
	events := metrics.NewInMemoryStore()
	sink := metrics.NewSink(events, nil, nil, nil)
	sender := sms.NewMockSender()
	dispatch := notify.NewDispatcher(sender, sink, notify.Config{
		CHWPhone:         testCHWPhone,
		FarmClinicNumber: testClinic,
	}, nil)

	orch := NewOrchestrator(Options{
		Users:           users,
		Assessor:        risk.NewAssessor(model, nil, nil),
		Detector:        triage.NewDetector("1195", "Not a doctor."),
		Sender:          sender,
		Dispatcher:      dispatch,
		Sink:            sink,
		EmergencyNumber: "1195",
	})
	return &testEnv{orch: orch, users: users, model: model, sender: sender, events: events}
}

func (e *testEnv) eventTypes(t *testing.T) []string {
	t.Helper()
	events, err := e.events.Since(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("Since() error = %v", err)
	}
	types := make([]string, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	return types
}

func (e *testEnv) hasEvent(t *testing.T, eventType string) bool {
	t.Helper()
	for _, typ := range e.eventTypes(t) {
		if typ == eventType {
			return true
		}
	}
	return false
}

func (e *testEnv) userRecord(t *testing.T) userstore.User {
	t.Helper()
	u, err := e.users.GetOrCreate(context.Background(), privacy.HashPhone(testUserPhone))
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	return u
}

func (e *testEnv) setCount(t *testing.T, count int) {
	t.Helper()
	hash := privacy.HashPhone(testUserPhone)
	if _, err := e.users.GetOrCreate(context.Background(), hash); err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	for i := 0; i < count; i++ {
		if _, err := e.users.IncrementInteractions(context.Background(), hash); err != nil {
			t.Fatalf("IncrementInteractions() error = %v", err)
		}
	}
}

func (e *testEnv) registerTeaWorker(t *testing.T) {
	t.Helper()
	hash := privacy.HashPhone(testUserPhone)
	if _, err := e.users.GetOrCreate(context.Background(), hash); err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	tea := true
	if err := e.users.Update(context.Background(), hash, userstore.Patch{TeaFarmWorker: &tea}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
}

func TestDangerBranchNewUser(t *testing.T) {
	env := newEnv()

	out, err := env.orch.Handle(context.Background(), testUserPhone, "I have severe pain")
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if out.Status != StatusDangerAlertSent {
		t.Fatalf("Status = %q, want danger_alert_sent", out.Status)
	}
	if !strings.Contains(out.Reply, "1195") || !strings.Contains(out.Reply, "Not a doctor.") {
		t.Fatalf("danger reply = %q", out.Reply)
	}

	if len(env.model.Requests) != 0 {
		t.Fatalf("completion service called on danger branch: %d calls", len(env.model.Requests))
	}

	sent := env.sender.Sent()
	if len(sent) != 2 {
		t.Fatalf("sends = %d, want user warning + CHW alert", len(sent))
	}
	if sent[0].Phone != testUserPhone {
		t.Fatalf("first send to %q, want the user", sent[0].Phone)
	}
	alert := sent[1]
	if alert.Phone != testCHWPhone {
		t.Fatalf("alert send to %q, want CHW", alert.Phone)
	}
	if !strings.Contains(alert.Text, "Location area: Bomet area.") {
		t.Fatalf("alert text = %q, want default location", alert.Text)
	}
	if !strings.Contains(alert.Text, "Masked user 5678") || strings.Contains(alert.Text, "712345678") {
		t.Fatalf("alert masking broken: %q", alert.Text)
	}

	for _, want := range []string{metrics.EventMessageReceived, metrics.EventDangerFlag, metrics.EventCHWReferral} {
		if !env.hasEvent(t, want) {
			t.Fatalf("missing event %q in %v", want, env.eventTypes(t))
		}
	}

	u := env.userRecord(t)
	if u.InteractionCount != 0 {
		t.Fatalf("InteractionCount = %d, want 0 (danger turns do not count)", u.InteractionCount)
	}
	if len(u.History) != 2 || u.History[0].Role != userstore.RoleUser || u.History[1].Role != userstore.RoleAssistant {
		t.Fatalf("history = %+v", u.History)
	}
}

func TestDangerBranchTeaWorkerRefersFarmClinic(t *testing.T) {
	env := newEnv()
	env.registerTeaWorker(t)

	out, err := env.orch.Handle(context.Background(), testUserPhone, "I am bleeding")
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if out.Status != StatusDangerAlertSent {
		t.Fatalf("Status = %q", out.Status)
	}

	var alert, referral string
	for _, s := range env.sender.Sent() {
		switch s.Phone {
		case testCHWPhone:
			alert = s.Text
		case testClinic:
			referral = s.Text
		}
	}
	if !strings.Contains(alert, "Location area: Mulot tea zone.") {
		t.Fatalf("alert = %q, want tea zone location", alert)
	}
	if !strings.Contains(referral, "urgent danger sign check") {
		t.Fatalf("farm referral = %q", referral)
	}
}

func TestTeaRegistrationWins(t *testing.T) {
	env := newEnv()
	env.setCount(t, 3)

	out, err := env.orch.Handle(context.Background(), testUserPhone, " tea ")
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if out.Status != StatusTeaRegistration {
		t.Fatalf("Status = %q, want tea_registration", out.Status)
	}
	if !strings.Contains(out.Reply, "Wakati wa kuchuma chai:") {
		t.Fatalf("welcome reply missing farm tip: %q", out.Reply)
	}

	u := env.userRecord(t)
	if !u.TeaFarmWorker {
		t.Fatalf("TeaFarmWorker = false, want persisted true")
	}
	if u.Language != lang.Kalenjin {
		t.Fatalf("Language = %q, want kal", u.Language)
	}
	if u.InteractionCount != 3 {
		t.Fatalf("InteractionCount = %d, want unchanged 3", u.InteractionCount)
	}
	if !env.hasEvent(t, metrics.EventTeaRegistration) || !env.hasEvent(t, metrics.EventTeaFarmEngagement) {
		t.Fatalf("events = %v", env.eventTypes(t))
	}
	if len(env.model.Requests) != 0 {
		t.Fatalf("completion service called on registration branch")
	}
}

func TestFeedbackBranch(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"NOT HELPFUL", metrics.EventFeedbackNegative},
		{"HELPFUL", metrics.EventFeedbackPositive},
		{"yes helpful", metrics.EventFeedbackPositive},
	}
	for _, tc := range cases {
		env := newEnv()
		out, err := env.orch.Handle(context.Background(), testUserPhone, tc.text)
		if err != nil {
			t.Fatalf("Handle(%q) error = %v", tc.text, err)
		}
		if out.Status != StatusFeedbackRecorded {
			t.Fatalf("Handle(%q) status = %q", tc.text, out.Status)
		}
		if !env.hasEvent(t, tc.want) {
			t.Fatalf("Handle(%q) events = %v, want %q", tc.text, env.eventTypes(t), tc.want)
		}
		u := env.userRecord(t)
		if len(u.History) != 2 || u.History[0].Role != userstore.RoleFeedback {
			t.Fatalf("Handle(%q) history = %+v, want feedback entry first", tc.text, u.History)
		}
	}
}

func TestANCPollReplies(t *testing.T) {
	env := newEnv()
	env.registerTeaWorker(t)

	out, err := env.orch.Handle(context.Background(), testUserPhone, "Y")
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if out.Status != StatusANCPollResponse {
		t.Fatalf("Status = %q", out.Status)
	}
	if out.Reply != ancYesReply {
		t.Fatalf("Reply = %q, want %q", out.Reply, ancYesReply)
	}
	for _, want := range []string{metrics.EventANCPollYes, metrics.EventANCVisitConfirmed, metrics.EventTeaFarmEngagement} {
		if !env.hasEvent(t, want) {
			t.Fatalf("missing event %q in %v", want, env.eventTypes(t))
		}
	}
	// Thank-you notification plus the poll reply itself.
	if sent := env.sender.Sent(); len(sent) != 2 {
		t.Fatalf("sends = %d, want 2", len(sent))
	}

	env2 := newEnv()
	out, err = env2.orch.Handle(context.Background(), testUserPhone, "no")
	if err != nil {
		t.Fatalf("Handle(no) error = %v", err)
	}
	if out.Reply != ancNoReply {
		t.Fatalf("Reply = %q, want %q", out.Reply, ancNoReply)
	}
	if !env2.hasEvent(t, metrics.EventANCPollNo) {
		t.Fatalf("events = %v, want anc_poll_no", env2.eventTypes(t))
	}
}

func TestQuestionBranchHighRiskAlertsAndUrgentPrefix(t *testing.T) {
	env := newEnv()
	env.model.Enqueue(llm.Reply{
		Text:  `{"response_text": "Go to the clinic immediately.", "risk_level": 0.9, "reason": "Possible pre-eclampsia", "recommended_action": "emergency"}`,
		Model: "grok-4.1-fast",
	})

	out, err := env.orch.Handle(context.Background(), testUserPhone, "my vision is fuzzy and hands numb")
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if out.Status != StatusSuccess {
		t.Fatalf("Status = %q", out.Status)
	}
	if !strings.HasPrefix(out.Reply, "URGENT: Go to clinic NOW or call 1195. ") {
		t.Fatalf("reply missing urgent prefix: %q", out.Reply)
	}

	var alert string
	for _, s := range env.sender.Sent() {
		if s.Phone == testCHWPhone {
			alert = s.Text
		}
	}
	if alert == "" {
		t.Fatalf("no CHW alert for risk 0.9")
	}
	if !strings.Contains(alert, "Possible pre-eclampsia") {
		t.Fatalf("alert = %q, want reason included", alert)
	}
}

func TestQuestionBranchModerateRiskNoAlert(t *testing.T) {
	env := newEnv()
	env.model.Enqueue(llm.Reply{
		Text: `{"response_text": "Rest and drink fluids.", "risk_level": 0.4, "reason": "Mild", "recommended_action": "monitor"}`,
	})

	out, err := env.orch.Handle(context.Background(), testUserPhone, "feeling a bit tired today")
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if strings.HasPrefix(out.Reply, "URGENT:") {
		t.Fatalf("unexpected urgent prefix: %q", out.Reply)
	}
	for _, s := range env.sender.Sent() {
		if s.Phone == testCHWPhone {
			t.Fatalf("unexpected CHW alert at risk 0.4: %q", s.Text)
		}
	}
	if u := env.userRecord(t); u.InteractionCount != 1 {
		t.Fatalf("InteractionCount = %d, want 1", u.InteractionCount)
	}
}

func TestCadenceTable(t *testing.T) {
	cases := []struct {
		count    int
		tea      bool
		invite   bool
		feedback bool
		anc      bool
		tip      bool
	}{
		{count: 1, tea: true, invite: true},
		{count: 3, tea: true, tip: true},
		{count: 4, tea: true, anc: true},
		{count: 5, tea: true, feedback: true},
		{count: 6, tea: true, tip: true},
		{count: 8, tea: true, anc: true},
		{count: 9, tea: true, tip: true},
		{count: 10, tea: true, feedback: true},
		{count: 12, tea: true, anc: true, tip: true},
		{count: 15, tea: true, feedback: true, tip: true},
		{count: 3, tea: false},
		{count: 12, tea: false, anc: true},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("count=%d,tea=%v", tc.count, tc.tea), func(t *testing.T) {
			env := newEnv()
			// Turn under test is the one reaching tc.count.
			env.setCount(t, tc.count-1)
			if tc.tea {
				env.registerTeaWorker(t)
			}
			env.model.Enqueue(llm.Reply{
				Text: `{"response_text": "Advice.", "risk_level": 0.2, "reason": "ok", "recommended_action": "monitor"}`,
			})

			out, err := env.orch.Handle(context.Background(), testUserPhone, "what should I eat this week")
			if err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			if got := strings.Contains(out.Reply, "Reply TEA"); got != tc.invite {
				t.Fatalf("invite appended = %v, want %v (reply %q)", got, tc.invite, out.Reply)
			}
			if got := strings.Contains(out.Reply, "Reply HELPFUL"); got != tc.feedback {
				t.Fatalf("feedback poll appended = %v, want %v (reply %q)", got, tc.feedback, out.Reply)
			}
			if got := strings.Contains(out.Reply, "Did you attend ANC"); got != tc.anc {
				t.Fatalf("anc poll appended = %v, want %v (reply %q)", got, tc.anc, out.Reply)
			}
			// registerTeaWorker leaves the language at English.
			if got := strings.Contains(out.Reply, "During tea picking:"); got != tc.tip {
				t.Fatalf("farm tip appended = %v, want %v (reply %q)", got, tc.tip, out.Reply)
			}
			if tc.feedback && !env.hasEvent(t, metrics.EventFeedbackPollSent) {
				t.Fatalf("feedback poll event missing: %v", env.eventTypes(t))
			}
		})
	}
}

func TestHistoryCapAcrossTurns(t *testing.T) {
	env := newEnv()

	for i := 0; i < 8; i++ {
		env.model.Enqueue(llm.Reply{
			Text: fmt.Sprintf(`{"response_text": "Advice %d.", "risk_level": 0.2, "reason": "ok", "recommended_action": "monitor"}`, i),
		})
		if _, err := env.orch.Handle(context.Background(), testUserPhone, fmt.Sprintf("question %d", i)); err != nil {
			t.Fatalf("Handle(%d) error = %v", i, err)
		}
	}

	u := env.userRecord(t)
	if len(u.History) != userstore.HistoryLimit {
		t.Fatalf("len(History) = %d, want %d", len(u.History), userstore.HistoryLimit)
	}
	last := u.History[len(u.History)-1]
	if last.Role != userstore.RoleAssistant || !strings.Contains(last.Content, "Advice 7.") {
		t.Fatalf("most recent entry = %+v", last)
	}
	first := u.History[0]
	if first.Content != "question 3" {
		t.Fatalf("oldest kept entry = %+v, want question 3", first)
	}
}

func TestQuestionPassesHistoryWithoutFeedbackEntries(t *testing.T) {
	env := newEnv()
	hash := privacy.HashPhone(testUserPhone)
	if _, err := env.users.GetOrCreate(context.Background(), hash); err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	for _, e := range []userstore.HistoryEntry{
		{Role: userstore.RoleUser, Content: "earlier question"},
		{Role: userstore.RoleAssistant, Content: "earlier answer"},
		{Role: userstore.RoleFeedback, Content: "HELPFUL"},
	} {
		if err := env.users.AppendHistory(context.Background(), hash, e.Role, e.Content); err != nil {
			t.Fatalf("AppendHistory() error = %v", err)
		}
	}

	if _, err := env.orch.Handle(context.Background(), testUserPhone, "new question"); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	req := env.model.Requests[0]
	for _, m := range req.Messages {
		if m.Content == "HELPFUL" {
			t.Fatalf("feedback entry leaked into model messages: %+v", req.Messages)
		}
	}
	// system + 2 history + current question
	if len(req.Messages) != 4 {
		t.Fatalf("len(Messages) = %d, want 4", len(req.Messages))
	}
}

func TestMessageSentSkippedWhenSendFails(t *testing.T) {
	env := newEnv()
	env.sender.Err = fmt.Errorf("gateway down")
	env.model.Enqueue(llm.Reply{
		Text: `{"response_text": "Advice.", "risk_level": 0.2, "reason": "ok", "recommended_action": "monitor"}`,
	})

	out, err := env.orch.Handle(context.Background(), testUserPhone, "question")
	if err != nil {
		t.Fatalf("Handle() error = %v, send failures must not fail the turn", err)
	}
	if out.Status != StatusSuccess {
		t.Fatalf("Status = %q", out.Status)
	}
	if env.hasEvent(t, metrics.EventMessageSent) {
		t.Fatalf("message_sent recorded despite failed delivery")
	}
}

func TestConcurrentTurnsSameUserDoNotLoseUpdates(t *testing.T) {
	env := newEnv()
	const turns = 10

	done := make(chan error, turns)
	for i := 0; i < turns; i++ {
		go func(i int) {
			_, err := env.orch.Handle(context.Background(), testUserPhone, fmt.Sprintf("question %d", i))
			done <- err
		}(i)
	}
	for i := 0; i < turns; i++ {
		if err := <-done; err != nil {
			t.Fatalf("Handle() error = %v", err)
		}
	}

	u := env.userRecord(t)
	if u.InteractionCount != turns {
		t.Fatalf("InteractionCount = %d, want %d", u.InteractionCount, turns)
	}
	if len(u.History) != userstore.HistoryLimit {
		t.Fatalf("len(History) = %d, want %d", len(u.History), userstore.HistoryLimit)
	}
}

func TestFeedbackMatcher(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"HELPFUL", true},
		{"NOT HELPFUL", true},
		{"this was very helpful indeed", true},
		{"yes!", true},
		{"help", true},
		{"Y", false},
		{"YES", false},
		{"N", false},
		{"NO", false},
		{"I have a headache", false},
		{"what should I eat", false},
	}
	for _, tc := range cases {
		if got := isFeedback(strings.ToUpper(tc.text)); got != tc.want {
			t.Fatalf("isFeedback(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}
