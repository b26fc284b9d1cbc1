package value

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
const (
	DomainRawEvent = "ordersync/raw-event/v1"
	DomainView     = "ordersync/view/v1"
)

// Hash computes SHA256(domain + 0x00 + canonical(v)).
// The null separator prevents domain/data boundary ambiguity.
func Hash(domain string, v Value) (string, error) {
	canonical, err := Canonical(v)
	if err != nil {
		return "", fmt.Errorf("hash: %w", err)
	}
	return HashBytes(domain, canonical), nil
}

// HashBytes hashes pre-encoded data with domain separation.
func HashBytes(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
