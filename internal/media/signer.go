package media

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultPlaybackTTL bounds how long a signed playback URL stays valid.
const DefaultPlaybackTTL = 30 * 24 * time.Hour

// PlaybackSigner mints the time-boxed tokens gating premium playback. The
// remote service validates tokens against the signing key registered under
// the key id, so the concrete algorithm stays pluggable behind this
// interface.
type PlaybackSigner interface {
	Sign(playbackID string, ttl time.Duration) (string, error)
}

// RSASigner signs playback tokens with an RSA private key, RS256, and a key
// id header, the format Mux-style services expect for signed playback.
type RSASigner struct {
	key   *rsa.PrivateKey
	keyID string
	now   func() time.Time
}

// NewRSASigner parses the signing key and returns a ready signer. The key may
// be raw PEM or base64-encoded PEM, matching how such keys are handed out by
// the remote service's dashboard.
func NewRSASigner(signingKey, keyID string) (*RSASigner, error) {
	trimmedKey := strings.TrimSpace(signingKey)
	if trimmedKey == "" {
		return nil, fmt.Errorf("playback signing key is required")
	}
	if strings.TrimSpace(keyID) == "" {
		return nil, fmt.Errorf("playback signing key id is required")
	}
	pemBytes := []byte(trimmedKey)
	if !strings.Contains(trimmedKey, "-----BEGIN") {
		decoded, err := base64.StdEncoding.DecodeString(trimmedKey)
		if err != nil {
			return nil, fmt.Errorf("decode playback signing key: %w", err)
		}
		pemBytes = decoded
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("parse playback signing key: %w", err)
	}
	return &RSASigner{key: key, keyID: keyID, now: time.Now}, nil
}

// Sign issues a token with subject = playbackID, audience "video", and an
// expiry of now + ttl.
func (s *RSASigner) Sign(playbackID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultPlaybackTTL
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   playbackID,
		Audience:  jwt.ClaimStrings{"video"},
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.keyID
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign playback token: %w", err)
	}
	return signed, nil
}

var _ PlaybackSigner = (*RSASigner)(nil)
