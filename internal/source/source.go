// Package source fetches raw lifecycle records from the marketplace.
//
// Sources return records as they are; normalization and checkpoint filtering
// happen downstream. Every implementation must be safe for concurrent use
// because the scheduler fetches entities in parallel.
package source

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/roach88/ordersync/internal/event"
)

// Source fetches an entity's records after a sequence id.
type Source interface {
	Fetch(ctx context.Context, entityID string, afterSeq int64) ([]event.Raw, error)
}

// Discoverer lists entity ids the source knows about.
type Discoverer interface {
	Discover(ctx context.Context) ([]string, error)
}

// Retryable reports whether a fetch error may succeed on retry.
// Errors that do not say otherwise are retryable.
func Retryable(err error) bool {
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}

// decodeRecord decodes one raw record. A record that is not valid JSON for
// the raw shape decodes to an empty Raw, which the normalizer rejects as
// malformed instead of failing the whole fetch.
func decodeRecord(data []byte) event.Raw {
	var r event.Raw
	if err := json.Unmarshal(data, &r); err != nil {
		return event.Raw{}
	}
	return r
}
