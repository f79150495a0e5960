package session

import (
	"time"

	"github.com/golang-jwt/jwt"
)

// credentialExpiry reads the exp claim of a JWT credential without
// verifying its signature; the server remains the judge of validity.
// Opaque tokens and session cookies report ok == false.
func credentialExpiry(credential string) (time.Time, bool) {
	claims := &jwt.StandardClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(credential, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == 0 {
		return time.Time{}, false
	}
	return time.Unix(claims.ExpiresAt, 0), true
}

func credentialExpired(credential string, now time.Time) bool {
	exp, ok := credentialExpiry(credential)
	return ok && !now.Before(exp)
}
