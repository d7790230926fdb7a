package ports

import (
	"context"

	"github.com/Skyrzilla/Dual-Domain-Cyber-Electronic-Warfare-Defence-Integration/internal/domain"
)

// RecordSource delivers raw records from a file, a replay capture, a
// message bus or a generator. The record channel is closed when the source
// is exhausted or stopped.
type RecordSource interface {
	Start(ctx context.Context) (<-chan domain.RawRecord, <-chan error)
	Stop() error
}

// Normalizer turns one raw record into an Event.
type Normalizer interface {
	// Normalize parses a record. It returns *domain.MalformedInputError when
	// the record has no usable source address or matches no known format.
	Normalize(raw domain.RawRecord) (*domain.Event, error)

	Format() string
}

// Ingester normalizes a record and accounts for rejects itself. The bool is
// false when the record was dropped.
type Ingester interface {
	Ingest(raw domain.RawRecord) (*domain.Event, bool)
}
