package ids

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// prefixes maps node labels to short ID prefixes. Labels not listed fall
// back to their first three letters.
var prefixes = map[string]string{
	"Ticket":     "TKT",
	"Escalation": "ESC",
	"Order":      "ORD",
	"Product":    "PROD",
	"Shipment":   "SHP",
	"Return":     "RET",
	"Customer":   "CUST",
}

// NewID generates a schema-aware identifier such as "TKT-A3F21C".
func NewID(label string) string {
	prefix, ok := prefixes[label]
	if !ok {
		up := strings.ToUpper(label)
		if len(up) > 3 {
			up = up[:3]
		}
		prefix = up
	}

	buf := make([]byte, 3)
	// rand.Read on the crypto source never fails in practice
	_, _ = rand.Read(buf)
	return prefix + "-" + strings.ToUpper(hex.EncodeToString(buf))
}
