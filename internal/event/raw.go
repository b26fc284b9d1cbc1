package event

import (
	"encoding/json"

	"github.com/roach88/ordersync/internal/value"
)

// Raw is a lifecycle record as the marketplace events API returns it.
// Fields are optional at the type level so the normalizer can report
// exactly which ones are missing.
type Raw struct {
	SequenceID *int64          `json:"sequenceId,omitempty"`
	EventType  string          `json:"eventType"`
	ResourceID string          `json:"resourceId"`
	CreatedAt  string          `json:"createdAt"`
	Actor      string          `json:"actor,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Seq returns the sequence id when present.
func (r Raw) Seq() (int64, bool) {
	if r.SequenceID == nil {
		return 0, false
	}
	return *r.SequenceID, true
}

// Fingerprint identifies a raw record in logs, including malformed ones.
func (r Raw) Fingerprint() string {
	data, err := json.Marshal(r)
	if err != nil {
		return ""
	}
	return value.HashBytes(value.DomainRawEvent, data)[:16]
}

// Int64 returns a pointer to n. Convenience for building Raw records.
func Int64(n int64) *int64 { return &n }
