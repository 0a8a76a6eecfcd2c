// Append-only history of moderation violations, and rolling-window counts over it.
//
// The escalation engine reads its counts from here, so records must be written before any platform side effect that depends on them.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aegis-bot/warden/automod/config"

	"github.com/google/uuid"
)

// Returned (wrapped) when a record could not be persisted. Retryable: appends are idempotent on the record ID.
var ErrLedgerWriteFailed = errors.New("violation ledger write failed")

type ActionTaken string

const (
	ActionNone    ActionTaken = "none"
	ActionWarn    ActionTaken = "warn"
	ActionDelete  ActionTaken = "delete"
	ActionTimeout ActionTaken = "timeout"
	ActionBan     ActionTaken = "ban"
)

type ViolationRecord struct {
	ID        string `json:"id"`
	GroupID   string `json:"groupId"`
	AuthorID  string `json:"authorId"`
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
	// triggered kinds in evaluation order; the first one is the primary violation
	Kinds []config.FilterKind `json:"kinds"`
	// per-kind detail strings, eg {"spam": "rate"}
	Metadata        map[string]string `json:"metadata,omitempty"`
	ContentSnapshot string            `json:"content"`
	ActionTaken     ActionTaken       `json:"actionTaken"`
	CreatedAt       time.Time         `json:"createdAt"`
}

func (r *ViolationRecord) PrimaryKind() config.FilterKind {
	if len(r.Kinds) == 0 {
		return ""
	}
	return r.Kinds[0]
}

// Time-ordered (v7) UUID for a new record.
func NewRecordID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

type Store interface {
	// Persists the record and returns its ID. Appending a record whose ID is already stored is a no-op.
	Append(ctx context.Context, rec *ViolationRecord) (string, error)
	// Number of records for the author in the group with CreatedAt >= since.
	CountSince(ctx context.Context, groupID, authorID string, since time.Time) (int, error)
}

// Optionally implemented by stores which can return stored records.
type Lister interface {
	// Most recent records for an author, newest first.
	Recent(ctx context.Context, groupID, authorID string, limit int) ([]ViolationRecord, error)
}

func prepare(rec *ViolationRecord) error {
	if rec.GroupID == "" || rec.AuthorID == "" {
		return fmt.Errorf("violation record missing group or author")
	}
	if rec.ID == "" {
		rec.ID = NewRecordID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	if rec.ActionTaken == "" {
		rec.ActionTaken = ActionNone
	}
	return nil
}

// Appends with a bounded number of attempts, doubling the delay between them. Safe because Append is idempotent on ID.
func AppendWithRetry(ctx context.Context, store Store, rec *ViolationRecord, attempts int, backoff time.Duration) (string, error) {
	if attempts < 1 {
		attempts = 1
	}
	if err := prepare(rec); err != nil {
		return "", fmt.Errorf("%w: %w", ErrLedgerWriteFailed, err)
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %w", ErrLedgerWriteFailed, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		id, err := store.Append(ctx, rec)
		if err == nil {
			return id, nil
		}
		lastErr = err
	}
	if errors.Is(lastErr, ErrLedgerWriteFailed) {
		return "", lastErr
	}
	return "", fmt.Errorf("%w: %w", ErrLedgerWriteFailed, lastErr)
}
