// Package tokens mints access tokens for the external media server. The
// media plane itself (SFU, RTP) is not this process's concern; clients
// take the token straight to the media host.
package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNotConfigured = errors.New("media credentials not configured")

// VideoGrant mirrors the grant block the media server expects.
type VideoGrant struct {
	Room         string `json:"room"`
	RoomJoin     bool   `json:"roomJoin"`
	CanPublish   bool   `json:"canPublish"`
	CanSubscribe bool   `json:"canSubscribe"`
}

type mediaClaims struct {
	jwt.RegisteredClaims
	Video    VideoGrant `json:"video"`
	Metadata string     `json:"metadata,omitempty"`
}

// Minter issues HS256 room-access tokens signed with the media API
// secret, issued by the media API key.
type Minter struct {
	apiKey    string
	apiSecret string
	ttl       time.Duration
	now       func() time.Time
}

func NewMinter(apiKey, apiSecret string, ttl time.Duration) *Minter {
	return &Minter{apiKey: apiKey, apiSecret: apiSecret, ttl: ttl, now: time.Now}
}

// RoomToken grants the identity full join/publish/subscribe access to a
// single room.
func (m *Minter) RoomToken(room, identity, metadata string) (string, error) {
	if m.apiKey == "" || m.apiSecret == "" {
		return "", ErrNotConfigured
	}
	now := m.now()
	claims := mediaClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.apiKey,
			Subject:   identity,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		Video: VideoGrant{
			Room:         room,
			RoomJoin:     true,
			CanPublish:   true,
			CanSubscribe: true,
		},
		Metadata: metadata,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString([]byte(m.apiSecret))
}
