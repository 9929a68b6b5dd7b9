package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

func NewRepo(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) UpsertSettings(ctx context.Context, guild string) (*Settings, error) {
	_, _ = r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings(guild_id) VALUES (?)`, guild,
	)
	return r.GetSettings(ctx, guild)
}

func (r *Repo) GetSettings(ctx context.Context, guild string) (*Settings, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT guild_id, prefix, default_volume, seconds_wait_after_empty
	FROM settings WHERE guild_id = ?`, guild)

	var s Settings
	if err := row.Scan(&s.GuildID, &s.Prefix, &s.DefaultVolume, &s.SecondsWaitAfterEmpty); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}
	return &s, nil
}

func (r *Repo) UpdateSettings(ctx context.Context, s *Settings) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE settings SET
		  prefix=?,
		  default_volume=?,
		  seconds_wait_after_empty=?
		WHERE guild_id=?`,
		s.Prefix, s.DefaultVolume, s.SecondsWaitAfterEmpty, s.GuildID,
	)
	return err
}

func (r *Repo) DeleteSettings(ctx context.Context, guild string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM settings WHERE guild_id=?`, guild)
	return err
}

func (r *Repo) SaveQueueState(ctx context.Context, q *QueueState) error {
	remaining, err := json.Marshal(q.RemainingQueue)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO queue_state(
		  guild_id, text_channel_id, voice_channel_id,
		  current_track_uri, current_position_ms, remaining_queue
		) VALUES (?,?,?,?,?,?)`,
		q.GuildID, q.TextChannelID, q.VoiceChannelID,
		q.CurrentTrackURI, q.CurrentPositionMS, string(remaining),
	)
	return err
}

func (r *Repo) UpdateQueuePosition(ctx context.Context, guild string, positionMS int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE queue_state SET current_position_ms=? WHERE guild_id=?`, positionMS, guild)
	return err
}

func (r *Repo) DeleteQueueState(ctx context.Context, guild string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM queue_state WHERE guild_id=?`, guild)
	return err
}

func (r *Repo) ListQueueStates(ctx context.Context) ([]QueueState, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT guild_id, text_channel_id, voice_channel_id,
	       current_track_uri, current_position_ms, remaining_queue
	FROM queue_state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QueueState
	for rows.Next() {
		var q QueueState
		var remaining string
		if err := rows.Scan(&q.GuildID, &q.TextChannelID, &q.VoiceChannelID,
			&q.CurrentTrackURI, &q.CurrentPositionMS, &remaining); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(remaining), &q.RemainingQueue); err != nil {
			q.RemainingQueue = nil
		}
		out = append(out, q)
	}
	return out, rows.Err()
}
