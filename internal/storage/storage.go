package storage

import "sojoswap/internal/model"

// Storage defines a sink for log records.
type Storage interface {
	PutLogBatch(logs []model.LogRecord) error
}

// EventStorage receives decoded pair events and the logs that failed to
// decode.
type EventStorage interface {
	PutEventBatch(events []model.TypedEvent) error
	PutDecodeErrors(errs []model.DecodeError) error
}
