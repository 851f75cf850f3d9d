package remote

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Parts-Partner/PartsPartners-sub001/internal/ratelimit"
	"github.com/Parts-Partner/PartsPartners-sub001/internal/search"
)

// Identity resolves the caller from an incoming request, best effort. A
// valid HS256 bearer token yields the user id from the subject claim; any
// failure leaves the caller anonymous with only a fingerprint.
type Identity struct {
	secret []byte
}

func NewIdentity(secret string) *Identity {
	return &Identity{secret: []byte(secret)}
}

func (i *Identity) Resolve(r *http.Request) search.Caller {
	c := search.Caller{
		Fingerprint: ratelimit.Fingerprint(ratelimit.ClientTraits{
			UserAgent:      r.UserAgent(),
			AcceptLanguage: r.Header.Get("Accept-Language"),
			Screen:         r.Header.Get("X-Client-Screen"),
			TimezoneOffset: r.Header.Get("X-Client-TZ"),
		}),
	}

	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(i.secret) == 0 || !strings.HasPrefix(auth, prefix) {
		return c
	}
	token := strings.TrimSpace(auth[len(prefix):])

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil || !parsed.Valid {
		return c
	}
	c.UserID = claims.Subject
	return c
}
