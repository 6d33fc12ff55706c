package gojob

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goliatone/go-iap/core"
	job "github.com/goliatone/go-job"
)

const (
	JobIDTransactionEvent  = "iap.transactions.event"
	ScriptTransactionEvent = "iap.transactions.event"

	paramEvent = "event"
	paramKind  = "kind"
)

type eventPayload struct {
	Kind         string                `json:"kind"`
	Transactions []transactionPayload  `json:"transactions,omitempty"`
	Error        *platformErrorPayload `json:"error,omitempty"`
}

type transactionPayload struct {
	ID                    string                `json:"id"`
	ProductID             string                `json:"product_id"`
	State                 string                `json:"state"`
	Date                  time.Time             `json:"date,omitzero"`
	OriginalTransactionID string                `json:"original_transaction_id,omitempty"`
	Quantity              int                   `json:"quantity,omitempty"`
	Error                 *platformErrorPayload `json:"error,omitempty"`
}

type platformErrorPayload struct {
	Code    int    `json:"code"`
	Domain  string `json:"domain,omitempty"`
	Message string `json:"message,omitempty"`
}

// EncodeEvent packs a transaction event into a go-job execution message.
// Storefront handles do not cross the queue; the consuming side finalizes by
// transaction id.
func EncodeEvent(event core.TransactionEvent) (*job.ExecutionMessage, error) {
	kind := strings.TrimSpace(string(event.Kind))
	if kind == "" {
		return nil, eventCodecError("event kind is required", nil)
	}
	payload := eventPayload{
		Kind:  kind,
		Error: fromPlatformError(event.Error),
	}
	for _, record := range event.Transactions {
		payload.Transactions = append(payload.Transactions, transactionPayload{
			ID:                    record.ID,
			ProductID:             record.ProductID,
			State:                 string(record.State),
			Date:                  record.Date.UTC(),
			OriginalTransactionID: record.OriginalTransactionID,
			Quantity:              record.Quantity,
			Error:                 fromPlatformError(record.Error),
		})
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, eventCodecError("encode transaction event", err)
	}
	return &job.ExecutionMessage{
		JobID:      JobIDTransactionEvent,
		ScriptPath: ScriptTransactionEvent,
		Parameters: map[string]any{
			paramKind:  kind,
			paramEvent: string(raw),
		},
	}, nil
}

// DecodeEvent reverses EncodeEvent. The event parameter may arrive as the
// original string, raw bytes or an already decoded JSON object depending on
// the queue backend.
func DecodeEvent(msg *job.ExecutionMessage) (core.TransactionEvent, error) {
	if msg == nil {
		return core.TransactionEvent{}, eventCodecError("execution message is required", nil)
	}
	if jobID := strings.TrimSpace(msg.JobID); jobID != JobIDTransactionEvent {
		return core.TransactionEvent{}, eventCodecError(fmt.Sprintf("unexpected job id %q", jobID), nil)
	}

	var raw []byte
	switch value := msg.Parameters[paramEvent].(type) {
	case string:
		raw = []byte(value)
	case []byte:
		raw = value
	case map[string]any:
		encoded, err := json.Marshal(value)
		if err != nil {
			return core.TransactionEvent{}, eventCodecError("re-encode event parameter", err)
		}
		raw = encoded
	case nil:
		return core.TransactionEvent{}, eventCodecError("event parameter is missing", nil)
	default:
		return core.TransactionEvent{}, eventCodecError(fmt.Sprintf("unsupported event parameter type %T", value), nil)
	}

	var payload eventPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return core.TransactionEvent{}, eventCodecError("decode transaction event", err)
	}
	event := core.TransactionEvent{
		Kind:  core.TransactionEventKind(payload.Kind),
		Error: toPlatformError(payload.Error),
	}
	for _, item := range payload.Transactions {
		event.Transactions = append(event.Transactions, core.TransactionRecord{
			ID:                    item.ID,
			ProductID:             item.ProductID,
			State:                 core.TransactionState(item.State),
			Date:                  item.Date,
			OriginalTransactionID: item.OriginalTransactionID,
			Quantity:              item.Quantity,
			Error:                 toPlatformError(item.Error),
		})
	}
	return event, nil
}

// EventKey identifies an event for retry accounting: kind plus sorted
// transaction id/state pairs.
func EventKey(event core.TransactionEvent) string {
	parts := make([]string, 0, len(event.Transactions))
	for _, record := range event.Transactions {
		parts = append(parts, record.ID+"@"+string(record.State))
	}
	sort.Strings(parts)
	return string(event.Kind) + "|" + strings.Join(parts, ",")
}

func fromPlatformError(err *core.PlatformError) *platformErrorPayload {
	if err == nil {
		return nil
	}
	return &platformErrorPayload{
		Code:    int(err.Code),
		Domain:  err.Domain,
		Message: err.Message,
	}
}

func toPlatformError(payload *platformErrorPayload) *core.PlatformError {
	if payload == nil {
		return nil
	}
	return &core.PlatformError{
		Code:    core.PlatformErrorCode(payload.Code),
		Domain:  payload.Domain,
		Message: payload.Message,
	}
}
