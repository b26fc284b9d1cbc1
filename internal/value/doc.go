// Package value defines the constrained JSON value model used for sub-order
// field payloads and change-history values.
//
// Only null, string, int64, bool, array and object are representable. Floats
// are rejected at every parsing boundary: quantities and prices travel as
// integer minor units.
//
// Canonical encoding follows RFC 8785 (sorted keys by UTF-16 code units, no
// HTML escaping, NFC-normalized strings). Two values are equal exactly when
// their canonical encodings are byte-identical.
package value
