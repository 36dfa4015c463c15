package store

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/2run66/freecord/internal/domain"
	"github.com/2run66/freecord/internal/metrics"
)

// Presence implements the persisted heartbeat mirror over gorm. All
// reads sweep stale rows first, so a roster is never older than the TTL.
type Presence struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

func NewPresence(db *gorm.DB, ttl time.Duration) *Presence {
	return &Presence{db: db, ttl: ttl, now: time.Now}
}

// Join records the user in the channel. Idempotent: a second join
// returns the existing row untouched, matching the socket layer's
// re-join-as-refresh behavior.
func (p *Presence) Join(ctx context.Context, ch domain.ChannelID, id domain.Identity) (VoiceParticipant, error) {
	now := p.now()
	row := VoiceParticipant{
		UserID:     id.UserID,
		ChannelID:  ch,
		UserName:   id.UserName,
		UserAvatar: id.UserAvatar,
		JoinedAt:   now,
		LastSeen:   now,
	}
	err := p.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return VoiceParticipant{}, err
	}
	// Re-read so a conflicting (pre-existing) join returns the original row.
	var out VoiceParticipant
	if err := p.db.WithContext(ctx).
		Where("user_id = ? AND channel_id = ?", id.UserID, ch).
		First(&out).Error; err != nil {
		return VoiceParticipant{}, err
	}
	return out, nil
}

// Leave removes the user's row for the channel. Removing an absent row
// is not an error.
func (p *Presence) Leave(ctx context.Context, ch domain.ChannelID, user domain.UserID) error {
	return p.db.WithContext(ctx).
		Where("user_id = ? AND channel_id = ?", user, ch).
		Delete(&VoiceParticipant{}).Error
}

// Heartbeat refreshes the row's LastSeen. A heartbeat for a row that was
// already swept is a no-op; the client discovers this on its next roster
// read and re-joins.
func (p *Presence) Heartbeat(ctx context.Context, ch domain.ChannelID, user domain.UserID) error {
	return p.db.WithContext(ctx).
		Model(&VoiceParticipant{}).
		Where("user_id = ? AND channel_id = ?", user, ch).
		Update("last_seen", p.now()).Error
}

// Participants sweeps the channel's stale rows, then lists the rest
// ordered by join time.
func (p *Presence) Participants(ctx context.Context, ch domain.ChannelID) ([]VoiceParticipant, error) {
	cutoff := p.now().Add(-p.ttl)
	res := p.db.WithContext(ctx).
		Where("channel_id = ? AND last_seen < ?", ch, cutoff).
		Delete(&VoiceParticipant{})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected > 0 {
		metrics.StalePresenceSwept.Add(float64(res.RowsAffected))
		log.Debug().Str("module", "store.presence").Str("channel", string(ch)).
			Int64("swept", res.RowsAffected).Msg("removed stale participants")
	}
	var rows []VoiceParticipant
	err := p.db.WithContext(ctx).
		Where("channel_id = ?", ch).
		Order("joined_at asc").
		Find(&rows).Error
	return rows, err
}

// Cleanup sweeps stale rows across every channel and reports how many
// were removed.
func (p *Presence) Cleanup(ctx context.Context) (int64, error) {
	cutoff := p.now().Add(-p.ttl)
	res := p.db.WithContext(ctx).
		Where("last_seen < ?", cutoff).
		Delete(&VoiceParticipant{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		metrics.StalePresenceSwept.Add(float64(res.RowsAffected))
		log.Info().Str("module", "store.presence").Int64("swept", res.RowsAffected).Msg("presence cleanup removed stale rows")
	}
	return res.RowsAffected, nil
}
