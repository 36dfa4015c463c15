package store

import (
	"time"

	"github.com/2run66/freecord/internal/domain"
)

// VoiceParticipant is one row of the persisted presence mirror. A user
// appears at most once per channel; LastSeen ages the row out when the
// client stops heartbeating.
type VoiceParticipant struct {
	UserID     domain.UserID    `gorm:"primaryKey;size:64" json:"userId"`
	ChannelID  domain.ChannelID `gorm:"primaryKey;size:64;index" json:"channelId"`
	UserName   string           `gorm:"size:64" json:"userName"`
	UserAvatar string           `gorm:"size:256" json:"userAvatar,omitempty"`
	JoinedAt   time.Time        `json:"joinedAt"`
	LastSeen   time.Time        `gorm:"index" json:"lastSeen"`
}

func (VoiceParticipant) TableName() string { return "voice_participants" }
