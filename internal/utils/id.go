package utils

import (
	"strings"

	"github.com/google/uuid"
)

// ShortID returns an 8-character upper-case identifier, unique enough for
// engine-generated records (matches, anomalies, decisions).
func ShortID() string {
	return strings.ToUpper(uuid.NewString()[:8])
}

// PrefixedID returns a ShortID with a record-type prefix, e.g. "CASE-3F9A21BC".
func PrefixedID(prefix string) string {
	return prefix + "-" + ShortID()
}
