package access

import (
	"errors"
	"time"

	"warden/cmd/internal/auth/autherr"

	"github.com/golang-jwt/jwt/v5"
)

// MinJWTKeyBytes is the smallest accepted HS256 key.
const MinJWTKeyBytes = 32

type jwtClaims struct {
	Authorities []string `json:"auth"`
	jwt.RegisteredClaims
}

// JWTCodec signs access tokens as HS256 JWTs.
type JWTCodec struct {
	key       []byte
	issuer    string
	clockSkew time.Duration
}

// NewJWTCodec builds an HS256 codec. The key must be at least MinJWTKeyBytes long.
func NewJWTCodec(key []byte, issuer string, clockSkew time.Duration) (*JWTCodec, error) {
	if len(key) < MinJWTKeyBytes {
		return nil, autherr.Config("access.NewJWTCodec", EnvJWTSigningKey)
	}
	return &JWTCodec{key: append([]byte(nil), key...), issuer: issuer, clockSkew: clockSkew}, nil
}

// Encode implements Codec.
func (c *JWTCodec) Encode(cl Claims) (string, error) {
	claims := jwtClaims{
		Authorities: nonNil(cl.Authorities),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   cl.Subject,
			ID:        cl.TokenID,
			IssuedAt:  jwt.NewNumericDate(cl.IssuedAt),
			NotBefore: jwt.NewNumericDate(cl.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(cl.ExpiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
}

// Decode implements Codec.
func (c *JWTCodec) Decode(token string, now time.Time) (Claims, error) {
	const op = "access.JWTCodec.Decode"
	cl, err := c.parse(token,
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(c.clockSkew),
	)
	if err != nil {
		return Claims{}, err
	}
	// Leeway widens exp as well; checkTimes restores the strict expiry.
	return checkTimes(op, cl, now, c.clockSkew)
}

// Inspect implements Codec.
func (c *JWTCodec) Inspect(token string) (Claims, error) {
	cl, err := c.parse(token, jwt.WithoutClaimsValidation())
	if err != nil {
		return Claims{}, err
	}
	if cl.Issuer != c.issuer {
		return Claims{}, autherr.InvalidToken("access.JWTCodec.Inspect", autherr.ReasonMalformed)
	}
	return cl, nil
}

func (c *JWTCodec) parse(token string, opts ...jwt.ParserOption) (Claims, error) {
	const op = "access.JWTCodec.parse"
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	var raw jwtClaims
	t, err := jwt.ParseWithClaims(token, &raw, func(*jwt.Token) (any, error) {
		return c.key, nil
	}, opts...)
	if err != nil {
		reason := autherr.ReasonMalformed
		if errors.Is(err, jwt.ErrTokenExpired) {
			reason = autherr.ReasonExpired
		}
		return Claims{}, autherr.InvalidToken(op, reason)
	}
	if !t.Valid || raw.Subject == "" || raw.ID == "" || raw.ExpiresAt == nil || raw.IssuedAt == nil {
		return Claims{}, autherr.InvalidToken(op, autherr.ReasonMalformed)
	}

	return Claims{
		Subject:     raw.Subject,
		TokenID:     raw.ID,
		Authorities: raw.Authorities,
		Issuer:      raw.Issuer,
		IssuedAt:    raw.IssuedAt.UTC(),
		ExpiresAt:   raw.ExpiresAt.UTC(),
	}, nil
}
