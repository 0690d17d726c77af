package media

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testSigningKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	block := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	return key, string(block)
}

func TestRSASignerIssuesVerifiableToken(t *testing.T) {
	key, pemKey := testSigningKey(t)
	signer, err := NewRSASigner(pemKey, "key-1")
	if err != nil {
		t.Fatalf("NewRSASigner: %v", err)
	}
	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	signer.now = func() time.Time { return issuedAt }

	signed, err := signer.Sign("pid-7", time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(signed, &claims, func(tok *jwt.Token) (interface{}, error) {
		return &key.PublicKey, nil
	}, jwt.WithTimeFunc(func() time.Time { return issuedAt }))
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if token.Header["kid"] != "key-1" {
		t.Fatalf("expected kid header key-1, got %v", token.Header["kid"])
	}
	if claims.Subject != "pid-7" {
		t.Fatalf("expected subject pid-7, got %q", claims.Subject)
	}
	if len(claims.Audience) != 1 || claims.Audience[0] != "video" {
		t.Fatalf("expected audience video, got %v", claims.Audience)
	}
	if !claims.ExpiresAt.Time.Equal(issuedAt.Add(time.Hour)) {
		t.Fatalf("expected expiry %v, got %v", issuedAt.Add(time.Hour), claims.ExpiresAt.Time)
	}
}

func TestRSASignerAcceptsBase64Key(t *testing.T) {
	_, pemKey := testSigningKey(t)
	encoded := base64.StdEncoding.EncodeToString([]byte(pemKey))

	signer, err := NewRSASigner(encoded, "key-1")
	if err != nil {
		t.Fatalf("NewRSASigner with base64 key: %v", err)
	}
	if _, err := signer.Sign("pid-1", 0); err != nil {
		t.Fatalf("Sign with default ttl: %v", err)
	}
}

func TestRSASignerRejectsBadInput(t *testing.T) {
	if _, err := NewRSASigner("", "key-1"); err == nil {
		t.Fatalf("expected error for empty key")
	}
	_, pemKey := testSigningKey(t)
	if _, err := NewRSASigner(pemKey, ""); err == nil {
		t.Fatalf("expected error for empty key id")
	}
	if _, err := NewRSASigner("not a key", "key-1"); err == nil {
		t.Fatalf("expected error for malformed key")
	}
}
