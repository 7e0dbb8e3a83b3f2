package access

import (
	"errors"
	"strings"
	"testing"
	"time"

	"warden/cmd/internal/auth/autherr"

	paseto "aidanwoods.dev/go-paseto"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testCodecs(t *testing.T, jwtKeyByte string) map[string]Codec {
	t.Helper()

	pc, err := NewPasetoCodec(paseto.NewV4AsymmetricSecretKey().ExportHex(), "warden-test", 30*time.Second)
	if err != nil {
		t.Fatalf("NewPasetoCodec: %v", err)
	}
	jc, err := NewJWTCodec([]byte(strings.Repeat(jwtKeyByte, 32)), "warden-test", 30*time.Second)
	if err != nil {
		t.Fatalf("NewJWTCodec: %v", err)
	}
	return map[string]Codec{CodecPaseto: pc, CodecJWT: jc}
}

func sampleClaims() Claims {
	return Claims{
		Subject:     "owner-1",
		TokenID:     "11111111-2222-4333-8444-555555555555",
		Authorities: []string{"ADMIN", "USER"},
		IssuedAt:    t0,
		ExpiresAt:   t0.Add(15 * time.Minute),
	}
}

func TestCodec_RoundTripAndExpiryBoundary(t *testing.T) {
	t.Parallel()

	for name, c := range testCodecs(t, "j") {
		t.Run(name, func(t *testing.T) {
			in := sampleClaims()
			tok, err := c.Encode(in)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}

			got, err := c.Decode(tok, in.ExpiresAt.Add(-time.Nanosecond))
			if err != nil {
				t.Fatalf("Decode before expiry: %v", err)
			}
			if got.Subject != in.Subject || got.TokenID != in.TokenID || got.Issuer != "warden-test" {
				t.Fatalf("claims mismatch: %+v", got)
			}
			if !got.ExpiresAt.Equal(in.ExpiresAt) || !got.IssuedAt.Equal(in.IssuedAt) {
				t.Fatalf("time claims mismatch: %+v", got)
			}
			if !got.HasAuthority("ADMIN") || len(got.Authorities) != 2 {
				t.Fatalf("authorities mismatch: %v", got.Authorities)
			}

			for _, at := range []time.Time{in.ExpiresAt, in.ExpiresAt.Add(time.Hour)} {
				_, err := c.Decode(tok, at)
				if !errors.Is(err, autherr.ErrInvalidToken) {
					t.Fatalf("Decode at %v: expected ErrInvalidToken, got %v", at, err)
				}
			}

			insp, err := c.Inspect(tok)
			if err != nil || insp.TokenID != in.TokenID {
				t.Fatalf("Inspect: %+v err=%v", insp, err)
			}
		})
	}
}

func TestCodec_Rejects(t *testing.T) {
	t.Parallel()

	codecs := testCodecs(t, "j")
	other := testCodecs(t, "x")

	for name, c := range codecs {
		t.Run(name, func(t *testing.T) {
			tok, err := c.Encode(sampleClaims())
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}

			cases := map[string]string{
				"empty":       "",
				"garbage":     "not-a-token",
				"truncated":   tok[:len(tok)-4],
				"foreign key": mustEncode(t, other[name], sampleClaims()),
			}
			for label, in := range cases {
				if _, err := c.Decode(in, t0); !errors.Is(err, autherr.ErrInvalidToken) {
					t.Fatalf("%s: expected ErrInvalidToken, got %v", label, err)
				}
				if _, err := c.Inspect(in); err == nil {
					t.Fatalf("%s: Inspect must fail", label)
				}
			}

			future := sampleClaims()
			future.IssuedAt = t0.Add(10 * time.Minute)
			future.ExpiresAt = t0.Add(20 * time.Minute)
			if _, err := c.Decode(mustEncode(t, c, future), t0); !errors.Is(err, autherr.ErrInvalidToken) {
				t.Fatalf("future iat: expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestCodec_WrongIssuer(t *testing.T) {
	t.Parallel()

	key := paseto.NewV4AsymmetricSecretKey().ExportHex()
	a, _ := NewPasetoCodec(key, "a", 0)
	b, _ := NewPasetoCodec(key, "b", 0)
	if _, err := b.Decode(mustEncode(t, a, sampleClaims()), t0); !errors.Is(err, autherr.ErrInvalidToken) {
		t.Fatalf("paseto: expected issuer rejection, got %v", err)
	}

	ja, _ := NewJWTCodec([]byte(strings.Repeat("k", 32)), "a", 0)
	jb, _ := NewJWTCodec([]byte(strings.Repeat("k", 32)), "b", 0)
	if _, err := jb.Decode(mustEncode(t, ja, sampleClaims()), t0); !errors.Is(err, autherr.ErrInvalidToken) {
		t.Fatalf("jwt: expected issuer rejection, got %v", err)
	}
	if _, err := jb.Inspect(mustEncode(t, ja, sampleClaims())); err == nil {
		t.Fatalf("jwt: Inspect must check issuer")
	}
}

func TestNewCodec_BadKeys(t *testing.T) {
	t.Parallel()

	if _, err := NewPasetoCodec("zz", "warden", 0); !errors.Is(err, autherr.ErrConfig) {
		t.Fatalf("paseto: expected ErrConfig, got %v", err)
	}
	if _, err := NewJWTCodec([]byte("short"), "warden", 0); !errors.Is(err, autherr.ErrConfig) {
		t.Fatalf("jwt: expected ErrConfig, got %v", err)
	}
}

func mustEncode(t *testing.T, c Codec, cl Claims) string {
	t.Helper()
	tok, err := c.Encode(cl)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return tok
}

func TestPasetoCodec_PublicKeyVerifiesTokens(t *testing.T) {
	t.Parallel()
	c := testCodecs(t, "p")[CodecPaseto].(*PasetoCodec)
	tok, err := c.Encode(sampleClaims())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	pub, err := paseto.NewV4AsymmetricPublicKeyFromHex(c.PublicKeyHex())
	if err != nil {
		t.Fatalf("parse exported public key: %v", err)
	}
	parsed, err := paseto.NewParserWithoutExpiryCheck().ParseV4Public(pub, tok, nil)
	if err != nil {
		t.Fatalf("external verify: %v", err)
	}
	if sub, _ := parsed.GetSubject(); sub != "owner-1" {
		t.Fatalf("subject=%q", sub)
	}

	other := testCodecs(t, "p")[CodecPaseto].(*PasetoCodec)
	if other.PublicKeyHex() == c.PublicKeyHex() {
		t.Fatalf("expected distinct keys per codec")
	}
}
