package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"intentLedger/internal/model"
)

// Journal is a sink for activity records of mutating operations.
type Journal interface {
	Record(ctx context.Context, rec model.ActivityRecord) error
}

// Activity statuses.
const (
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
)

// NewActivity starts a record for op by account.
func NewActivity(op, account string) model.ActivityRecord {
	return model.ActivityRecord{
		ID:      uuid.NewString(),
		Op:      op,
		Account: strings.ToLower(account),
		At:      time.Now().UTC(),
	}
}

// Append writes rec to j, if any. Journal failures are logged and never
// fail the operation that produced the record.
func Append(ctx context.Context, j Journal, logger *zap.Logger, rec model.ActivityRecord, opErr error) {
	if j == nil {
		return
	}
	if rec.Status == "" {
		rec.Status = StatusConfirmed
		if opErr != nil {
			rec.Status = StatusFailed
		}
	}
	if opErr != nil && rec.Error == "" {
		rec.Error = opErr.Error()
	}
	var revert *model.RevertError
	if rec.TxHash == "" && errors.As(opErr, &revert) {
		rec.TxHash = revert.TxHash
	}
	if err := j.Record(ctx, rec); err != nil && logger != nil {
		logger.Warn("journal write failed", zap.String("op", rec.Op), zap.String("id", rec.ID), zap.Error(err))
	}
}
