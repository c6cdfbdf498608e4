// Package idgen generates the identifiers used across mcpterm: request
// correlation keys and stable local entry ids.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"
)

// alnum is the alphabet for the random request-id suffix.
const alnum = "abcdefghijklmnopqrstuvwxyz0123456789"

// requestSuffixLen is the length of the random tail of a request id.
const requestSuffixLen = 9

// NewRequestID returns a correlation key of the form req_<unix_ms>_<rand9>.
// Unique per question; never reused.
func NewRequestID() string {
	return fmt.Sprintf("req_%d_%s", time.Now().UnixMilli(), randString(requestSuffixLen))
}

// NewEntryID returns a stable 32-char hex identifier for a history row.
func NewEntryID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failure is effectively unreachable; fall back to a
		// time-derived id rather than panicking mid-session.
		return fmt.Sprintf("%032x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}

func randString(n int) string {
	max := big.NewInt(int64(len(alnum)))
	out := make([]byte, n)
	for i := range out {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			out[i] = alnum[time.Now().UnixNano()%int64(len(alnum))]
			continue
		}
		out[i] = alnum[v.Int64()]
	}
	return string(out)
}
