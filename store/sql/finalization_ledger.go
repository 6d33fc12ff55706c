package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	defaultClaimLease = 5 * time.Minute
	defaultLedgerTTL  = 24 * time.Hour
)

// FinalizationLedger is a core.FinalizationLedger backed by a SQL table, for
// hosts that run several bridges over one storefront queue or need claims to
// survive a restart. A processing claim older than the lease is treated as
// abandoned and may be claimed again.
type FinalizationLedger struct {
	db    *bun.DB
	repo  repository.Repository[*finalizationRecord]
	lease time.Duration
	now   func() time.Time
}

type LedgerOption func(*FinalizationLedger)

// WithClaimLease sets how long a processing claim blocks other claimers.
// Zero disables takeover.
func WithClaimLease(lease time.Duration) LedgerOption {
	return func(l *FinalizationLedger) {
		if lease >= 0 {
			l.lease = lease
		}
	}
}

func WithClock(now func() time.Time) LedgerOption {
	return func(l *FinalizationLedger) {
		if now != nil {
			l.now = now
		}
	}
}

func NewFinalizationLedger(db *bun.DB, opts ...LedgerOption) (*FinalizationLedger, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*finalizationRecord](db, finalizationHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid finalization repository wiring: %w", err)
		}
	}
	ledger := &FinalizationLedger{
		db:    db,
		repo:  repo,
		lease: defaultClaimLease,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ledger)
		}
	}
	return ledger, nil
}

func (l *FinalizationLedger) Claim(ctx context.Context, transactionID string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.db == nil {
		return "", false, fmt.Errorf("sqlstore: finalization ledger is not configured")
	}
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return "", false, fmt.Errorf("sqlstore: transaction id is required")
	}
	if ttl <= 0 {
		ttl = defaultLedgerTTL
	}
	now := l.clock()
	claimID := uuid.NewString()

	accepted := false
	err := l.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current := &finalizationRecord{}
		err := tx.NewSelect().
			Model(current).
			Where("?TableAlias.transaction_id = ?", transactionID).
			Limit(1).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			record := &finalizationRecord{
				ID:            uuid.NewString(),
				TransactionID: transactionID,
				ClaimID:       &claimID,
				Status:        ledgerStatusProcessing,
				Attempts:      1,
				TTLMillis:     ttl.Milliseconds(),
				ClaimedAt:     &now,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			result, insertErr := tx.NewInsert().
				Model(record).
				On("CONFLICT (transaction_id) DO NOTHING").
				Exec(ctx)
			if insertErr != nil {
				return insertErr
			}
			accepted = rowsAffected(result) == 1
			return nil
		}
		if err != nil {
			return err
		}
		if !l.claimable(current, now) {
			return nil
		}

		result, updateErr := tx.NewUpdate().
			Model((*finalizationRecord)(nil)).
			Set("claim_id = ?", claimID).
			Set("status = ?", ledgerStatusProcessing).
			Set("attempts = attempts + 1").
			Set("ttl_ms = ?", ttl.Milliseconds()).
			Set("claimed_at = ?", now).
			Set("expires_at = NULL").
			Set("updated_at = ?", now).
			Where("id = ?", current.ID).
			Where("attempts = ?", current.Attempts).
			Exec(ctx)
		if updateErr != nil {
			return updateErr
		}
		accepted = rowsAffected(result) == 1
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("sqlstore: claim transaction %q: %w", transactionID, err)
	}
	if !accepted {
		return "", false, nil
	}
	return claimID, true, nil
}

func (l *FinalizationLedger) Complete(ctx context.Context, claimID string) error {
	return l.settle(ctx, claimID, func(record *finalizationRecord, now time.Time, query *bun.UpdateQuery) *bun.UpdateQuery {
		expiresAt := now.Add(time.Duration(record.TTLMillis) * time.Millisecond)
		return query.
			Set("status = ?", ledgerStatusComplete).
			Set("expires_at = ?", expiresAt).
			Set("last_error = ?", "")
	})
}

func (l *FinalizationLedger) Fail(ctx context.Context, claimID string, cause error) error {
	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}
	return l.settle(ctx, claimID, func(_ *finalizationRecord, _ time.Time, query *bun.UpdateQuery) *bun.UpdateQuery {
		return query.
			Set("status = ?", ledgerStatusReleased).
			Set("last_error = ?", lastError)
	})
}

// settle closes a processing claim. Unknown or superseded claims are a no-op.
func (l *FinalizationLedger) settle(
	ctx context.Context,
	claimID string,
	apply func(record *finalizationRecord, now time.Time, query *bun.UpdateQuery) *bun.UpdateQuery,
) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("sqlstore: finalization ledger is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return fmt.Errorf("sqlstore: claim id is required")
	}
	now := l.clock()
	return l.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &finalizationRecord{}
		err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.claim_id = ?", claimID).
			Limit(1).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if record.Status != ledgerStatusProcessing {
			return nil
		}
		query := tx.NewUpdate().
			Model((*finalizationRecord)(nil)).
			Set("claim_id = NULL").
			Set("updated_at = ?", now).
			Where("id = ?", record.ID).
			Where("claim_id = ?", claimID)
		_, err = apply(record, now, query).Exec(ctx)
		return err
	})
}

// Entry returns the ledger row for transactionID.
func (l *FinalizationLedger) Entry(ctx context.Context, transactionID string) (LedgerEntry, bool, error) {
	if l == nil || l.repo == nil {
		return LedgerEntry{}, false, fmt.Errorf("sqlstore: finalization ledger is not configured")
	}
	records, _, err := l.repo.List(ctx,
		repository.SelectBy("transaction_id", "=", strings.TrimSpace(transactionID)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return LedgerEntry{}, false, err
	}
	if len(records) == 0 {
		return LedgerEntry{}, false, nil
	}
	return records[0].toEntry(), true, nil
}

// Entries lists ledger rows, most recently updated first, optionally
// filtered by status.
func (l *FinalizationLedger) Entries(ctx context.Context, status string, limit int) ([]LedgerEntry, error) {
	if l == nil || l.repo == nil {
		return nil, fmt.Errorf("sqlstore: finalization ledger is not configured")
	}
	if limit <= 0 {
		limit = 100
	}
	selectors := []repository.SelectCriteria{
		repository.OrderBy("updated_at DESC"),
		repository.SelectPaginate(limit, 0),
	}
	if status = strings.TrimSpace(status); status != "" {
		selectors = append(selectors, repository.SelectBy("status", "=", status))
	}
	records, _, err := l.repo.List(ctx, selectors...)
	if err != nil {
		return nil, err
	}
	out := make([]LedgerEntry, 0, len(records))
	for _, record := range records {
		out = append(out, record.toEntry())
	}
	return out, nil
}

// PurgeExpired deletes completed rows whose dedup window has passed.
func (l *FinalizationLedger) PurgeExpired(ctx context.Context) (int64, error) {
	if l == nil || l.db == nil {
		return 0, fmt.Errorf("sqlstore: finalization ledger is not configured")
	}
	result, err := l.db.NewDelete().
		Model((*finalizationRecord)(nil)).
		Where("status = ?", ledgerStatusComplete).
		Where("expires_at <= ?", l.clock()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return rowsAffected(result), nil
}

func (l *FinalizationLedger) claimable(record *finalizationRecord, now time.Time) bool {
	switch record.Status {
	case ledgerStatusReleased:
		return true
	case ledgerStatusProcessing:
		if l.lease <= 0 || record.ClaimedAt == nil {
			return false
		}
		return !now.Before(record.ClaimedAt.Add(l.lease))
	case ledgerStatusComplete:
		return record.ExpiresAt == nil || !now.Before(*record.ExpiresAt)
	default:
		return true
	}
}

func (l *FinalizationLedger) clock() time.Time {
	if l != nil && l.now != nil {
		return l.now().UTC()
	}
	return time.Now().UTC()
}

func rowsAffected(result sql.Result) int64 {
	if result == nil {
		return 0
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0
	}
	return count
}
