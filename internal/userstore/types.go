package userstore

import (
	"context"
	"errors"
	"time"

	"github.com/ent0n29/mamashield/internal/lang"
)

// HistoryLimit caps the stored conversation history per user.
const HistoryLimit = 10

// ErrNotFound is returned by writes against a phone hash that was never
// created.
var ErrNotFound = errors.New("user not found")

// Role classifies one history entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleFeedback  Role = "feedback"
)

// HistoryEntry is one stored conversation turn.
type HistoryEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// User is the state kept per phone hash. Raw phone numbers never reach
// storage; the hash is the only key.
type User struct {
	PhoneHash        string         `json:"phone_hash"`
	Language         lang.Language  `json:"language"`
	DueDate          *time.Time     `json:"due_date,omitempty"`
	PregnancyWeeks   *int           `json:"pregnancy_weeks,omitempty"`
	TeaFarmWorker    bool           `json:"tea_farm_worker"`
	InteractionCount int            `json:"interaction_count"`
	LastInteraction  time.Time      `json:"last_interaction"`
	History          []HistoryEntry `json:"history"`
}

// Patch is a typed partial update; nil fields stay untouched.
type Patch struct {
	Language       *lang.Language
	DueDate        *time.Time
	PregnancyWeeks *int
	TeaFarmWorker  *bool
}

// Store persists per-user state keyed by phone hash.
type Store interface {
	GetOrCreate(ctx context.Context, phoneHash string) (User, error)
	Update(ctx context.Context, phoneHash string, patch Patch) error
	IncrementInteractions(ctx context.Context, phoneHash string) (int, error)
	AppendHistory(ctx context.Context, phoneHash string, role Role, content string) error
	Close() error
}
