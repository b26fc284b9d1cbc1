package event

import (
	"cmp"
	"slices"

	"github.com/roach88/ordersync/internal/syncerr"
)

// Rejected is a raw record the normalizer refused.
type Rejected struct {
	Raw Raw
	Err error
}

// Batch is the result of normalizing every record fetched for one entity.
type Batch struct {
	Events   []Event
	Rejected []Rejected
}

// MaxSequence returns the greatest sequence id seen in the batch, counting
// rejected records that carried one. Zero when the batch is empty.
func (b Batch) MaxSequence() int64 {
	highest := MaxSequence(b.Events)
	for _, r := range b.Rejected {
		if seq, ok := r.Raw.Seq(); ok && seq > highest {
			highest = seq
		}
	}
	return highest
}

// NormalizeAll normalizes records fetched for entityID. Records that belong
// to a different entity are rejected as malformed.
func (n Normalizer) NormalizeAll(entityID string, raws []Raw) Batch {
	var b Batch
	for _, raw := range raws {
		ev, err := n.Normalize(raw)
		if err == nil && entityID != "" && ev.EntityID != entityID {
			err = syncerr.Malformed(entityID, ev.SequenceID, "record belongs to entity %s", ev.EntityID)
		}
		if err != nil {
			b.Rejected = append(b.Rejected, Rejected{Raw: raw, Err: err})
			continue
		}
		b.Events = append(b.Events, ev)
	}
	return b
}

// Select returns the events newer than checkpoint in ascending sequence
// order. Duplicate sequence ids keep their first occurrence.
// The input slice is not modified.
func Select(events []Event, checkpoint int64) []Event {
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		if ev.SequenceID > checkpoint {
			out = append(out, ev)
		}
	}
	slices.SortStableFunc(out, func(a, b Event) int {
		return cmp.Compare(a.SequenceID, b.SequenceID)
	})
	return slices.CompactFunc(out, func(a, b Event) bool {
		return a.SequenceID == b.SequenceID
	})
}

// MaxSequence returns the greatest sequence id among events, or zero.
func MaxSequence(events []Event) int64 {
	var highest int64
	for _, ev := range events {
		if ev.SequenceID > highest {
			highest = ev.SequenceID
		}
	}
	return highest
}
