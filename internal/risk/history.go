package risk

import (
	"github.com/ent0n29/mamashield/internal/llm"
	"github.com/ent0n29/mamashield/internal/userstore"
)

// History converts stored conversation entries into model messages.
// Feedback entries are program signals, not dialog turns, and are skipped.
func History(entries []userstore.HistoryEntry) []llm.Message {
	out := make([]llm.Message, 0, len(entries))
	for _, e := range entries {
		switch e.Role {
		case userstore.RoleUser:
			out = append(out, llm.Message{Role: llm.RoleUser, Content: e.Content})
		case userstore.RoleAssistant:
			out = append(out, llm.Message{Role: llm.RoleAssistant, Content: e.Content})
		}
	}
	return out
}
