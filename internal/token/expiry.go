package token

import (
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"
)

// credentialExpiry derives an expiry from the credential itself. Endpoints
// in this system commonly serve signed JWTs, so the credential is parsed as
// one without verifying the signature; the token service that issued it is
// the party we fetched it from, and the expiry is only used for renewal
// scheduling, never for trust decisions. Credentials that are not JWTs, or
// JWTs without an exp claim, have no known expiry.
func credentialExpiry(credential string) (time.Time, bool) {
	parsed, err := jwt.ParseInsecure([]byte(credential))
	if err != nil {
		return time.Time{}, false
	}

	exp := parsed.Expiration()
	if exp.IsZero() {
		return time.Time{}, false
	}
	return exp, true
}
