package access

import (
	"time"

	"warden/cmd/internal/auth/autherr"

	paseto "aidanwoods.dev/go-paseto"
)

const claimAuthorities = "auth"

// PasetoCodec signs access tokens as PASETO v4.public (Ed25519).
type PasetoCodec struct {
	issuer    string
	clockSkew time.Duration

	secret paseto.V4AsymmetricSecretKey
	public paseto.V4AsymmetricPublicKey
}

// NewPasetoCodec builds a codec from a hex-encoded v4 secret key.
func NewPasetoCodec(secretKeyHex, issuer string, clockSkew time.Duration) (*PasetoCodec, error) {
	secret, err := paseto.NewV4AsymmetricSecretKeyFromHex(secretKeyHex)
	if err != nil {
		return nil, autherr.Config("access.NewPasetoCodec", EnvPasetoSecretKeyHex)
	}
	return &PasetoCodec{
		issuer:    issuer,
		clockSkew: clockSkew,
		secret:    secret,
		public:    secret.Public(),
	}, nil
}

// PublicKeyHex returns the verification key for out-of-process verifiers.
func (c *PasetoCodec) PublicKeyHex() string { return c.public.ExportHex() }

// Encode implements Codec.
func (c *PasetoCodec) Encode(cl Claims) (string, error) {
	tok := paseto.NewToken()
	tok.SetIssuer(c.issuer)
	tok.SetSubject(cl.Subject)
	tok.SetJti(cl.TokenID)
	tok.SetIssuedAt(cl.IssuedAt)
	tok.SetNotBefore(cl.IssuedAt)
	tok.SetExpiration(cl.ExpiresAt)
	if err := tok.Set(claimAuthorities, nonNil(cl.Authorities)); err != nil {
		return "", err
	}
	return tok.V4Sign(c.secret, nil), nil
}

// Decode implements Codec. Expiry is checked here rather than by the parser so that a token is
// rejected exactly at its expiry instant.
func (c *PasetoCodec) Decode(token string, now time.Time) (Claims, error) {
	cl, err := c.Inspect(token)
	if err != nil {
		return Claims{}, err
	}
	return checkTimes("access.PasetoCodec.Decode", cl, now, c.clockSkew)
}

// Inspect implements Codec.
func (c *PasetoCodec) Inspect(token string) (Claims, error) {
	const op = "access.PasetoCodec.Inspect"

	// Fresh parser per call; rules accumulate on a parser.
	p := paseto.NewParserWithoutExpiryCheck()
	p.AddRule(paseto.IssuedBy(c.issuer))

	parsed, err := p.ParseV4Public(c.public, token, nil)
	if err != nil {
		return Claims{}, autherr.InvalidToken(op, autherr.ReasonMalformed)
	}

	sub, err := parsed.GetSubject()
	if err != nil || sub == "" {
		return Claims{}, autherr.InvalidToken(op, autherr.ReasonMalformed)
	}
	jti, err := parsed.GetJti()
	if err != nil || jti == "" {
		return Claims{}, autherr.InvalidToken(op, autherr.ReasonMalformed)
	}
	exp, err := parsed.GetExpiration()
	if err != nil {
		return Claims{}, autherr.InvalidToken(op, autherr.ReasonMalformed)
	}
	iat, err := parsed.GetIssuedAt()
	if err != nil {
		return Claims{}, autherr.InvalidToken(op, autherr.ReasonMalformed)
	}
	iss, _ := parsed.GetIssuer()

	var auth []string
	if err := parsed.Get(claimAuthorities, &auth); err != nil {
		return Claims{}, autherr.InvalidToken(op, autherr.ReasonMalformed)
	}

	return Claims{
		Subject:     sub,
		TokenID:     jti,
		Authorities: auth,
		Issuer:      iss,
		IssuedAt:    iat.UTC(),
		ExpiresAt:   exp.UTC(),
	}, nil
}

func checkTimes(op string, cl Claims, now time.Time, skew time.Duration) (Claims, error) {
	if cl.ExpiredAt(now) {
		return Claims{}, autherr.InvalidToken(op, autherr.ReasonExpired)
	}
	if cl.IssuedAt.After(now.Add(skew)) {
		return Claims{}, autherr.InvalidToken(op, autherr.ReasonMalformed)
	}
	return cl, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
