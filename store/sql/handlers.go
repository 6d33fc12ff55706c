package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func finalizationHandlers() repository.ModelHandlers[*finalizationRecord] {
	return repository.ModelHandlers[*finalizationRecord]{
		NewRecord: func() *finalizationRecord {
			return &finalizationRecord{}
		},
		GetID: func(record *finalizationRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *finalizationRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "transaction_id"
		},
		GetIdentifierValue: func(record *finalizationRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.TransactionID)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
