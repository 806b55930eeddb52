package ledger

import (
	"context"
	"time"
)

// Outcome is the terminal state of one generation.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// Entry is one usage record: a finished generation. It stores no prompt or
// reply text, only volumes and timings.
type Entry struct {
	ID         int64     `json:"id"`
	ClientID   string    `json:"client_id"`
	Model      string    `json:"model"`
	Outcome    Outcome   `json:"outcome"`
	Fragments  int64     `json:"fragments"`
	Chars      int64     `json:"chars"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Summary aggregates generation counts per outcome.
type Summary struct {
	Generations int64 `json:"generations"`
	Completed   int64 `json:"completed"`
	Cancelled   int64 `json:"cancelled"`
	Failed      int64 `json:"failed"`
	Chars       int64 `json:"chars"`
}

// Store defines persistence behaviour for the usage ledger.
type Store interface {
	Record(ctx context.Context, entry Entry) error
	ListRecent(ctx context.Context, limit int) ([]Entry, error)
	Summary(ctx context.Context) (Summary, error)
	Close() error
}
