package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ent0n29/mamashield/internal/culture"
	"github.com/ent0n29/mamashield/internal/jsonx"
	"github.com/ent0n29/mamashield/internal/lang"
	"github.com/ent0n29/mamashield/internal/llm"
	"github.com/ent0n29/mamashield/internal/observability"
)

const riskSystemPrompt = "You are an advanced maternal health risk assessment AI for rural Kenya (Bomet tea region). " +
	"Analyze symptoms, pregnancy context, and cultural factors. " +
	"Output ONLY valid JSON with this structure: " +
	`{"response_text": "helpful SMS advice <250 chars", ` +
	`"risk_level": 0.0-1.0 (0=safe, 0.3=monitor, 0.6=concern, 0.8=urgent), ` +
	`"reason": "brief clinical reason", ` +
	`"recommended_action": "monitor/anc_visit/call_1195/emergency"}`

const adviceSystemPrompt = "You are an advanced reasoning engine for maternal health in rural Kenya, especially Bomet tea farming region. " +
	"Act as superior AI assistant (30%% more precise than basic triage) by analyzing: " +
	"symptoms + pregnancy week + cultural context + local risks (malaria in rainy Mulot). " +
	"Use simple %s. Always refer to clinic/professional. Prioritize referrals to local tea estate clinics or CHWs in Bomet. " +
	"Do NOT diagnose. " +
	"Flag danger signs (bleeding, severe pain, headache/swelling, blurred vision, " +
	"convulsions, fever, reduced fetal movement). Keep responses short for SMS " +
	"(<250 chars). Include disclaimer if needed."

// Input carries one question plus the conversation state behind it.
type Input struct {
	History        []llm.Message
	Message        string
	Language       lang.Language
	PregnancyWeeks *int
}

// Result is a structured assessment. Degraded results came from a fallback
// path and default to monitoring; they are still safe to send as-is.
type Result struct {
	ResponseText      string
	RiskLevel         float64
	Reason            string
	RecommendedAction Action
	Model             string
	Degraded          bool
}

// Assessor turns a user question into a Result, tolerating models that wrap
// or break the requested JSON.
type Assessor struct {
	completer llm.Completer
	obs       *observability.Metrics
	logger    *zap.Logger
}

func NewAssessor(completer llm.Completer, obs *observability.Metrics, logger *zap.Logger) *Assessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assessor{completer: completer, obs: obs, logger: logger}
}

func (a *Assessor) Assess(ctx context.Context, in Input) Result {
	system := culture.EnrichPrompt(riskSystemPrompt, in.Language, in.Message)
	if in.PregnancyWeeks != nil && *in.PregnancyWeeks > 0 {
		system += fmt.Sprintf("\n\nPregnancy: %d weeks. Consider trimester risks.", *in.PregnancyWeeks)
	}

	reply := a.completer.Complete(ctx, llm.Request{
		Messages: buildMessages(system, in.History, in.Message),
		JSONMode: true,
	})

	raw, ok := jsonx.ExtractObject(reply.Text)
	if !ok {
		// Plain text despite the JSON instruction. Ship it verbatim with a
		// monitoring default.
		return a.observe(Result{
			ResponseText:      reply.Text,
			RiskLevel:         0.3,
			Reason:            "Standard advice",
			RecommendedAction: ActionMonitor,
			Model:             reply.Model,
			Degraded:          true,
		})
	}

	var payload struct {
		ResponseText      string   `json:"response_text"`
		RiskLevel         *float64 `json:"risk_level"`
		Reason            string   `json:"reason"`
		RecommendedAction string   `json:"recommended_action"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		a.logger.Warn("risk payload unparseable", zap.Error(err), zap.String("model", reply.Model))
		return a.plainFallback(ctx, in)
	}

	action, validAction := ParseAction(payload.RecommendedAction)
	if strings.TrimSpace(payload.ResponseText) == "" || payload.RiskLevel == nil || !validAction {
		a.logger.Warn("risk payload incomplete",
			zap.String("model", reply.Model),
			zap.String("action", payload.RecommendedAction))
		return a.plainFallback(ctx, in)
	}

	level := *payload.RiskLevel
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}

	return a.observe(Result{
		ResponseText:      strings.TrimSpace(payload.ResponseText),
		RiskLevel:         level,
		Reason:            payload.Reason,
		RecommendedAction: action,
		Model:             reply.Model,
		Degraded:          reply.Degraded,
	})
}

// plainFallback re-asks without JSON mode using the advice persona, so the
// user still gets usable text when the structured payload is broken.
func (a *Assessor) plainFallback(ctx context.Context, in Input) Result {
	system := fmt.Sprintf(adviceSystemPrompt, string(in.Language))
	system = culture.EnrichPrompt(system, in.Language, in.Message)
	if in.PregnancyWeeks != nil && *in.PregnancyWeeks > 0 {
		system += fmt.Sprintf("\n\nCONTEXT: User is at %d weeks pregnant. Adjust advice accordingly.", *in.PregnancyWeeks)
	}

	reply := a.completer.Complete(ctx, llm.Request{
		Messages: buildMessages(system, in.History, in.Message),
	})
	return a.observe(Result{
		ResponseText:      reply.Text,
		RiskLevel:         0.3,
		Reason:            "Parsing error - manual review recommended",
		RecommendedAction: ActionMonitor,
		Model:             reply.Model,
		Degraded:          true,
	})
}

// observe feeds the assessment into the histogram, or counts the fallback
// when the result did not come from a clean structured reply.
func (a *Assessor) observe(res Result) Result {
	if res.Degraded {
		a.obs.ObserveIndicator("assess_fallback")
	} else if a.obs != nil {
		a.obs.RiskLevel.Observe(res.RiskLevel)
	}
	return res
}

func buildMessages(system string, history []llm.Message, userMessage string) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userMessage})
	return messages
}
