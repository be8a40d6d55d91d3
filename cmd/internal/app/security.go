package app

import (
	"errors"
	"fmt"

	"studydeck/cmd/security/sealbox"
	"studydeck/cmd/security/token"
)

// ValidateSecurityConfig enforces the credential-at-rest policy at startup.
//
// A seal key that is set but too short is always an error: silently storing
// plaintext when the operator asked for sealing is worse than not starting.
// With STUDYDECK_REQUIRE_SEALED_CREDENTIALS=true a missing key is an error too.
func ValidateSecurityConfig(cfg Config) error {
	_, err := token.KeyFromEnv(token.SealKeyEnv, sealbox.MinSecretBytes)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, token.ErrKeyTooShort):
		return fmt.Errorf("security policy: %s is too short (min %d bytes)", token.SealKeyEnv, sealbox.MinSecretBytes)
	case errors.Is(err, token.ErrKeyMissing):
		if cfg.RequireSealedCredentials {
			return fmt.Errorf("security policy: STUDYDECK_REQUIRE_SEALED_CREDENTIALS=true but %s is missing", token.SealKeyEnv)
		}
		return nil
	default:
		return err
	}
}
