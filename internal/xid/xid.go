// Package xid mints record and node identifiers. IDs appear in URL paths and
// redis keys, so they stay within [a-z0-9-].
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// New returns prefix-<base36 unix nanos>-<random hex>. The time part keeps
// IDs roughly ordered by creation; the random part keeps two devices of the
// same shop from colliding.
func New(prefix string) string {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	stamp := strconv.FormatInt(time.Now().UnixNano(), 36)

	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return prefix + "-" + stamp
	}
	return prefix + "-" + stamp + "-" + hex.EncodeToString(buf)
}
