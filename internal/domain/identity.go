// Package domain contains entity types without logic, just meta-data
package domain

import "errors"

const (
	MaxUserIDLen   = 64
	MaxUserNameLen = 64
	MaxChannelLen  = 64
)

var (
	ErrUserIDEmpty    = errors.New("user id empty")
	ErrUserIDTooLong  = errors.New("user id too long")
	ErrUserNameEmpty  = errors.New("user name empty")
	ErrUserNameLong   = errors.New("user name too long")
	ErrChannelEmpty   = errors.New("channel id empty")
	ErrChannelTooLong = errors.New("channel id too long")
)

type (
	UserID    string
	ChannelID string
	ChatID    string
)

// Identity is what a connection declares about itself on its first
// identifying event. Last write wins; a user may rename mid-session.
type Identity struct {
	UserID     UserID `json:"userId"`
	UserName   string `json:"userName"`
	UserAvatar string `json:"userAvatar,omitempty"`
}

func (id Identity) Validate() error {
	if id.UserID == "" {
		return ErrUserIDEmpty
	}
	if len(id.UserID) > MaxUserIDLen {
		return ErrUserIDTooLong
	}
	if id.UserName == "" {
		return ErrUserNameEmpty
	}
	if len(id.UserName) > MaxUserNameLen {
		return ErrUserNameLong
	}
	return nil
}

// Participant is the presence payload shape for one member of a voice room.
// It is always rebuilt from live connection state, never cached.
type Participant struct {
	UserID     UserID `json:"userId"`
	UserName   string `json:"userName"`
	UserAvatar string `json:"userAvatar,omitempty"`
}
