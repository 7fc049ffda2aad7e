// Package token signs and verifies the gateway's bearer credentials.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"

	"github.com/smallbiznis/smallbiznis-gateway/internal/apperror"
)

// Claims are the custom claims embedded in every issued token.
type Claims struct {
	ID    string   `json:"id"`
	Scope []string `json:"scope"`
}

// Codec signs and verifies compact JWS tokens with a single shared HS256
// secret. It holds no mutable state and is safe for concurrent use.
type Codec struct {
	secret []byte
	now    func() time.Time
}

// NewCodec builds a codec around the shared signing secret.
func NewCodec(secret []byte) *Codec {
	return &Codec{secret: secret, now: time.Now}
}

// Sign produces a signed credential for the given claims, expiring after ttl.
func (c *Codec) Sign(claims Claims, ttl time.Duration) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: c.secret},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", apperror.Wrap(apperror.KindEncoding, "build signer", err)
	}

	issuedAt := c.now()
	std := jwt.Claims{
		ID:       uuid.NewString(),
		IssuedAt: jwt.NewNumericDate(issuedAt),
		Expiry:   jwt.NewNumericDate(issuedAt.Add(ttl)),
	}

	raw, err := jwt.Signed(signer).Claims(std).Claims(claims).Serialize()
	if err != nil {
		return "", apperror.Wrap(apperror.KindEncoding, "serialize claims", err)
	}
	return raw, nil
}

// Verify checks the signature and expiry of a presented credential and
// returns its claims. Failures carry the taxonomy kind the pipeline maps to
// the boundary: expired tokens KindTokenExpired, everything else
// KindJSONWebToken.
func (c *Codec) Verify(raw string) (Claims, error) {
	parsed, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return Claims{}, apperror.Wrap(apperror.KindJSONWebToken, "parse token", err)
	}

	var (
		std    jwt.Claims
		claims Claims
	)
	if err := parsed.Claims(c.secret, &std, &claims); err != nil {
		return Claims{}, apperror.Wrap(apperror.KindJSONWebToken, "verify signature", err)
	}

	if err := std.Validate(jwt.Expected{Time: c.now()}); err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return Claims{}, apperror.Wrap(apperror.KindTokenExpired, "token expired", err)
		}
		return Claims{}, apperror.Wrap(apperror.KindJSONWebToken, "validate claims", err)
	}

	return claims, nil
}

var validityUnits = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
	"week":   7 * 24 * time.Hour,
}

// ParseValidity turns a validity string into a duration. It accepts Go
// duration syntax ("24h", "90m") as well as spelled-out units ("1 hour",
// "10 minutes"). Empty input yields def.
func ParseValidity(s string, def time.Duration) (time.Duration, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return def, nil
	}

	if d, err := time.ParseDuration(trimmed); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("validity must be positive: %q", s)
		}
		return d, nil
	}

	fields := strings.Fields(strings.ToLower(trimmed))
	if len(fields) == 2 {
		n, err := strconv.Atoi(fields[0])
		if err == nil && n > 0 {
			if unit, ok := validityUnits[strings.TrimSuffix(fields[1], "s")]; ok {
				return time.Duration(n) * unit, nil
			}
		}
	}

	return 0, fmt.Errorf("unparseable validity: %q", s)
}
