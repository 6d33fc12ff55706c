package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	ledgerStatusProcessing = "processing"
	ledgerStatusReleased   = "released"
	ledgerStatusComplete   = "complete"
)

type finalizationRecord struct {
	bun.BaseModel `bun:"table:iap_finalization_ledger,alias:ifl"`

	ID            string     `bun:"id,pk"`
	TransactionID string     `bun:"transaction_id,notnull"`
	ClaimID       *string    `bun:"claim_id"`
	Status        string     `bun:"status,notnull"`
	Attempts      int        `bun:"attempts,notnull"`
	TTLMillis     int64      `bun:"ttl_ms,notnull"`
	LastError     string     `bun:"last_error"`
	ClaimedAt     *time.Time `bun:"claimed_at,nullzero"`
	ExpiresAt     *time.Time `bun:"expires_at,nullzero"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// LedgerEntry is the exported view of one ledger row.
type LedgerEntry struct {
	TransactionID string
	Status        string
	Attempts      int
	LastError     string
	ClaimedAt     time.Time
	ExpiresAt     time.Time
	UpdatedAt     time.Time
}

func (r *finalizationRecord) toEntry() LedgerEntry {
	entry := LedgerEntry{
		TransactionID: r.TransactionID,
		Status:        r.Status,
		Attempts:      r.Attempts,
		LastError:     r.LastError,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.ClaimedAt != nil {
		entry.ClaimedAt = *r.ClaimedAt
	}
	if r.ExpiresAt != nil {
		entry.ExpiresAt = *r.ExpiresAt
	}
	return entry
}
