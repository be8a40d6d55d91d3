package gate

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// accessExpired peeks at the exp claim without verifying the signature.
// structured is false when tok is not a JWT or carries no exp.
func accessExpired(tok string, now time.Time, skew time.Duration) (expired, structured bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err != nil {
		return false, false
	}
	if claims.ExpiresAt == nil {
		return false, false
	}
	return !now.Add(skew).Before(claims.ExpiresAt.Time), true
}
