// Package token implements the Token Codec: minting and verifying
// stateless bearer tokens signed with a symmetric HMAC secret
// (golang-jwt/jwt/v5), carrying a type discriminator (ACCESS | REFRESH |
// SERVICE_ACCOUNT) and exposing the jti needed by the Revocation Ledger.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Type discriminates what a token may be used for. Application routes
// accept only Access; the refresh handshake accepts only Refresh;
// SERVICE_ACCOUNT tokens are minted for CI integrations against a narrow
// permission set (e.g. JENKINS:NOTIFY) and otherwise behave like Access.
type Type string

const (
	Access         Type = "ACCESS"
	Refresh        Type = "REFRESH"
	ServiceAccount Type = "SERVICE_ACCOUNT"
)

// minSigningSecretBytes enforces the startup invariant that the signing
// secret, used as raw bytes, is at least 32 bytes (256 bits) long.
const minSigningSecretBytes = 32

// knownDefaultSecrets are sentinel values that must never be used in
// production; Bootstrap refuses to start if the configured secret matches
// one of these.
var knownDefaultSecrets = map[string]bool{
	"changeme":                  true,
	"secret":                    true,
	"default":                   true,
	"your-secret-key":           true,
	"your-256-bit-secret":       true,
}

// Claims is the decoded shape of a verified token.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
	Type Type   `json:"typ"`
}

var (
	ErrMalformed        = errors.New("token: malformed or invalid signature")
	ErrExpired          = errors.New("token: expired")
	ErrWrongType        = errors.New("token: unexpected type")
	ErrWeakSecret       = errors.New("token: signing secret is missing, too short, or a known default")
)

// Codec signs and verifies tokens with one symmetric secret.
type Codec struct {
	secret            []byte
	issuer            string
	accessTTL         time.Duration
	refreshTTL        time.Duration
	serviceAccountTTL time.Duration
}

// ValidateSigningSecret enforces the startup invariant ahead of
// constructing a Codec. Call this once at startup; a non-nil error means
// the process must abort.
func ValidateSigningSecret(secret string) error {
	if len(secret) < minSigningSecretBytes {
		return ErrWeakSecret
	}
	if knownDefaultSecrets[secret] {
		return ErrWeakSecret
	}
	return nil
}

func NewCodec(secret, issuer string, accessTTL, refreshTTL, serviceAccountTTL time.Duration) (*Codec, error) {
	if err := ValidateSigningSecret(secret); err != nil {
		return nil, err
	}
	return &Codec{
		secret:            []byte(secret),
		issuer:            issuer,
		accessTTL:         accessTTL,
		refreshTTL:        refreshTTL,
		serviceAccountTTL: serviceAccountTTL,
	}, nil
}

// Minted is the result of a mint call: the signed string plus the claims
// that were embedded, so the caller can persist the jti/expiry without
// re-parsing its own output.
type Minted struct {
	Raw    string
	JTI    string
	Type   Type
	ExpiresAt time.Time
}

func (c *Codec) ttlFor(typ Type) time.Duration {
	switch typ {
	case Refresh:
		return c.refreshTTL
	case ServiceAccount:
		return c.serviceAccountTTL
	default:
		return c.accessTTL
	}
}

// Mint signs a new token of the given type for (username, role), assigning
// a fresh random jti.
func (c *Codec) Mint(username, role string, typ Type) (Minted, error) {
	jti, err := newJTI()
	if err != nil {
		return Minted{}, err
	}

	now := time.Now().UTC()
	expiresAt := now.Add(c.ttlFor(typ))

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ID:        jti,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role: role,
		Type: typ,
	}

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return Minted{}, err
	}

	return Minted{Raw: raw, JTI: jti, Type: typ, ExpiresAt: expiresAt}, nil
}

// Verify parses and validates signature and expiry. It does not consult
// the Revocation Ledger or the Credential Store — those checks belong to
// the Request Gate, which composes Verify with ledger/principal lookups.
func (c *Codec) Verify(raw string) (*Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrMalformed
		}
		return c.secret, nil
	}, jwt.WithIssuer(c.issuer), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrMalformed
	}
	if !parsed.Valid {
		return nil, ErrMalformed
	}
	return &claims, nil
}

// RequireType returns ErrWrongType if claims.Type does not match want.
func RequireType(claims *Claims, want Type) error {
	if claims.Type != want {
		return ErrWrongType
	}
	return nil
}

func newJTI() (string, error) {
	buf := make([]byte, 16) // 128 bits of entropy for the token's jti
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
