// Package event converts raw marketplace lifecycle records into canonical,
// schema-validated events.
//
// A canonical Event is a tagged variant: Kind is the discriminant and Payload
// holds the per-kind schema. Normalization is pure. Records missing required
// fields fail with a MALFORMED_EVENT error and unrecognized types with
// UNKNOWN_EVENT_KIND; both only invalidate the single record.
//
// Batch selection is level-triggered: events are sorted by sequence id,
// anything at or below the checkpoint is dropped, and gaps are tolerated.
package event
