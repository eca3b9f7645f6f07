package llm

import "context"

// Chat roles accepted by the completion API.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn sent to the model.
type Message struct {
	Role    string
	Content string
}

// Request describes a single completion call. MaxTokens of zero picks the
// mode default (structured calls get a larger budget than plain advice).
type Request struct {
	Messages  []Message
	JSONMode  bool
	MaxTokens int
}

// Reply is the completion outcome. Degraded marks the canned emergency
// text used when every model attempt failed; the caller can still send it.
type Reply struct {
	Text     string
	Model    string
	Degraded bool
}

// Completer produces a chat completion. Implementations never return an
// error: provider failures degrade into a safe Reply instead, so the SMS
// pipeline always has something to send.
type Completer interface {
	Complete(ctx context.Context, req Request) Reply
}
