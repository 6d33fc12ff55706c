package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// finalizeClaim is the ledger reservation taken for one delivered record
// before it is routed.
type finalizeClaim struct {
	taken     bool
	id        string
	duplicate bool
	err       error
}

func finalizeFields(b *Bridge, record TransactionRecord) (map[string]any, map[string]string) {
	return map[string]any{
		"bridge":         b.config.BridgeName,
		"transaction_id": record.ID,
		"product_id":     record.ProductID,
		"state":          string(record.State),
	}, map[string]string{"state": string(record.State)}
}

// claimFinalization reserves a terminal record with an id in the ledger. A
// duplicate claim means the record was already acknowledged or is being
// acknowledged by another delivery.
func (b *Bridge) claimFinalization(ctx context.Context, record TransactionRecord) finalizeClaim {
	if record.ID == "" || !record.State.Terminal() {
		return finalizeClaim{}
	}
	fields, tags := finalizeFields(b, record)
	claimID, accepted, err := b.ledger.Claim(ctx, record.ID, b.config.Finalize.LedgerTTL)
	if err != nil {
		fields["error"] = err.Error()
		b.logError(ctx, "finalization ledger claim failed", fields)
		b.count(ctx, MetricTransactionsFinalizeFailed, tags)
		return finalizeClaim{taken: true, err: err}
	}
	if !accepted {
		b.logInfo(ctx, "transaction already finalized", fields)
		b.count(ctx, MetricTransactionsFinalizeDuplicate, tags)
		return finalizeClaim{taken: true, duplicate: true}
	}
	return finalizeClaim{taken: true, id: claimID}
}

// releaseClaim hands an unused claim back to the ledger.
func (b *Bridge) releaseClaim(ctx context.Context, record TransactionRecord, claim finalizeClaim, cause error) {
	if claim.id == "" {
		return
	}
	if err := b.ledger.Fail(ctx, claim.id, cause); err != nil {
		fields, _ := finalizeFields(b, record)
		fields["ledger_error"] = err.Error()
		b.logError(ctx, "finalization ledger release failed", fields)
	}
}

// finalize acknowledges record to the storefront under claim. A failed
// acknowledgement releases the claim so a redelivery can try again, and the
// error is returned to the caller.
func (b *Bridge) finalize(ctx context.Context, record TransactionRecord, claim finalizeClaim) error {
	if !claim.taken {
		claim = b.claimFinalization(ctx, record)
	}
	if claim.err != nil {
		return claim.err
	}
	if claim.duplicate {
		return nil
	}

	fields, tags := finalizeFields(b, record)
	if record.ID == "" {
		b.logWarn(ctx, "finalizing transaction without id, duplicate suppression unavailable", fields)
	}
	if err := b.storefront.FinalizeTransaction(ctx, record); err != nil {
		fields["error"] = err.Error()
		b.logError(ctx, "finalize transaction failed", fields)
		b.count(ctx, MetricTransactionsFinalizeFailed, tags)
		b.releaseClaim(ctx, record, claim, err)
		return err
	}
	if claim.id != "" {
		if err := b.ledger.Complete(ctx, claim.id); err != nil {
			fields["error"] = err.Error()
			b.logError(ctx, "finalization ledger complete failed", fields)
		}
	}
	b.count(ctx, MetricTransactionsFinalized, tags)
	return nil
}

type claimStatus string

const (
	claimStatusProcessing claimStatus = "processing"
	claimStatusReleased   claimStatus = "released"
	claimStatusComplete   claimStatus = "complete"
)

type ledgerEntry struct {
	TransactionID string
	Status        claimStatus
	ClaimID       string
	Attempts      int
	TTL           time.Duration
	ExpiresAt     time.Time
	LastError     string
}

// InMemoryFinalizationLedger is the default process-local ledger.
type InMemoryFinalizationLedger struct {
	mu      sync.Mutex
	entries map[string]ledgerEntry
	claims  map[string]string
	nextID  int
	Now     func() time.Time
}

func NewInMemoryFinalizationLedger() *InMemoryFinalizationLedger {
	return &InMemoryFinalizationLedger{
		entries: map[string]ledgerEntry{},
		claims:  map[string]string{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (l *InMemoryFinalizationLedger) Claim(
	_ context.Context,
	transactionID string,
	ttl time.Duration,
) (string, bool, error) {
	if l == nil {
		return "", false, internalError("core: finalization ledger is nil", nil)
	}
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return "", false, badInputError("core: transaction id is required", nil)
	}
	if ttl <= 0 {
		ttl = defaultLedgerTTL
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.evictExpiredLocked(now)
	entry, exists := l.entries[transactionID]
	if exists && entry.Status != claimStatusReleased {
		return "", false, nil
	}

	claimID := l.nextClaimID()
	if !exists {
		entry = ledgerEntry{TransactionID: transactionID}
	}
	if entry.ClaimID != "" {
		delete(l.claims, entry.ClaimID)
	}
	entry.Status = claimStatusProcessing
	entry.ClaimID = claimID
	entry.Attempts++
	entry.TTL = ttl
	entry.ExpiresAt = time.Time{}
	l.entries[transactionID] = entry
	l.claims[claimID] = transactionID
	return claimID, true, nil
}

func (l *InMemoryFinalizationLedger) Complete(_ context.Context, claimID string) error {
	if l == nil {
		return internalError("core: finalization ledger is nil", nil)
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return badInputError("core: claim id is required", nil)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	transactionID, ok := l.claims[claimID]
	if !ok {
		return nil
	}
	delete(l.claims, claimID)
	entry, exists := l.entries[transactionID]
	if !exists || entry.ClaimID != claimID || entry.Status != claimStatusProcessing {
		return nil
	}
	entry.Status = claimStatusComplete
	entry.ExpiresAt = l.now().Add(entry.TTL)
	entry.LastError = ""
	l.entries[transactionID] = entry
	return nil
}

func (l *InMemoryFinalizationLedger) Fail(_ context.Context, claimID string, cause error) error {
	if l == nil {
		return internalError("core: finalization ledger is nil", nil)
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return badInputError("core: claim id is required", nil)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	transactionID, ok := l.claims[claimID]
	if !ok {
		return nil
	}
	delete(l.claims, claimID)
	entry, exists := l.entries[transactionID]
	if !exists || entry.ClaimID != claimID || entry.Status != claimStatusProcessing {
		return nil
	}
	entry.Status = claimStatusReleased
	entry.ClaimID = ""
	if cause != nil {
		entry.LastError = cause.Error()
	}
	l.entries[transactionID] = entry
	return nil
}

// Attempts reports how many claims were granted for transactionID.
func (l *InMemoryFinalizationLedger) Attempts(transactionID string) int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries[strings.TrimSpace(transactionID)].Attempts
}

func (l *InMemoryFinalizationLedger) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func (l *InMemoryFinalizationLedger) nextClaimID() string {
	l.nextID++
	return fmt.Sprintf("claim_%d", l.nextID)
}

func (l *InMemoryFinalizationLedger) evictExpiredLocked(now time.Time) {
	for transactionID, entry := range l.entries {
		if entry.Status != claimStatusComplete {
			continue
		}
		if entry.ExpiresAt.IsZero() || !now.Before(entry.ExpiresAt) {
			delete(l.entries, transactionID)
		}
	}
}
