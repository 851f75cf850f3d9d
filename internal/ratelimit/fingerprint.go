package ratelimit

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ClientTraits are the coarse browser characteristics the storefront sends
// along with anonymous requests. Collisions and spoofing are both possible.
type ClientTraits struct {
	UserAgent      string
	AcceptLanguage string
	Screen         string
	TimezoneOffset string
}

// Fingerprint hashes the traits into a short stable token. Non-cryptographic
// on purpose; this is an abuse-dampening heuristic, not a security boundary.
func Fingerprint(t ClientTraits) string {
	joined := strings.Join([]string{t.UserAgent, t.AcceptLanguage, t.Screen, t.TimezoneOffset}, "|")
	return strconv.FormatUint(xxhash.Sum64String(joined), 16)
}
