// Package identity verifies identity-provider session tokens and fetches the
// provider's view of a user.
package identity

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is the iss claim on every provider session token
const Issuer = "privy.io"

// ErrInvalidToken is returned for tokens that fail verification
var ErrInvalidToken = errors.New("invalid identity token")

// Claims are the session token claims. Subject is the identity id.
type Claims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}

// Verifier checks ES256 session tokens issued for one app
type Verifier struct {
	appID string
	key   *ecdsa.PublicKey
}

// NewVerifier parses the app's PEM verification key
func NewVerifier(appID, verificationKeyPEM string) (*Verifier, error) {
	// keys pasted into env files often carry literal \n
	pem := strings.ReplaceAll(verificationKeyPEM, `\n`, "\n")

	key, err := jwt.ParseECPublicKeyFromPEM([]byte(pem))
	if err != nil {
		return nil, fmt.Errorf("parse verification key: %w", err)
	}
	return NewVerifierWithKey(appID, key), nil
}

// NewVerifierWithKey creates a verifier from a parsed public key
func NewVerifierWithKey(appID string, key *ecdsa.PublicKey) *Verifier {
	return &Verifier{appID: appID, key: key}
}

// Verify validates signature, issuer, audience and expiry, and returns the claims
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
		}
		return v.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(v.appID),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}
