package operation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ackClaims wraps the operation envelope being acknowledged inside a
// standard HS256-signed JWT claim set.
type ackClaims struct {
	Envelope json.RawMessage `json:"envelope"`
	jwt.RegisteredClaims
}

// Signer optionally attaches a signed acknowledgement token to an
// operation response, so a cloud-side consumer can verify the result came
// from this device.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

// NewSigner builds a Signer that HMAC-signs with secret; ttl bounds how
// long the token is considered valid (0 disables expiry).
func NewSigner(secret []byte, ttl time.Duration) *Signer {
	return &Signer{secret: secret, ttl: ttl}
}

// Sign returns a compact JWT embedding env as an opaque claim.
func (s *Signer) Sign(env Envelope) (string, error) {
	raw, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("operation: marshal envelope for signing: %w", err)
	}

	claims := ackClaims{Envelope: raw, RegisteredClaims: jwt.RegisteredClaims{
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}}
	if s.ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(s.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses and validates token, returning the embedded Envelope.
func (s *Signer) Verify(token string) (Envelope, error) {
	parsed, err := jwt.ParseWithClaims(token, &ackClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("operation: unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return Envelope{}, fmt.Errorf("operation: verify token: %w", err)
	}

	claims, ok := parsed.Claims.(*ackClaims)
	if !ok || !parsed.Valid {
		return Envelope{}, fmt.Errorf("operation: invalid token")
	}

	var env Envelope
	if err := json.Unmarshal(claims.Envelope, &env); err != nil {
		return Envelope{}, fmt.Errorf("operation: decode embedded envelope: %w", err)
	}
	return env, nil
}
