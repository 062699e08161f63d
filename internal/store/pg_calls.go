package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"startuphub-comms/internal/domain"
	comms_errors "startuphub-comms/pkg/errors"
)

func (p *Postgres) CreateCallRoom(ctx context.Context, chatRoomID *uuid.UUID, creator uuid.UUID, maxParticipants int, recording bool) (domain.CallRoom, error) {
	if maxParticipants <= 0 || maxParticipants > p.limits.MaxCallParticipants {
		maxParticipants = p.limits.MaxCallParticipants
	}
	call := domain.CallRoom{
		ID:                 uuid.New(),
		ChatRoomID:         chatRoomID,
		CreatedBy:          creator,
		IsActive:           true,
		MaxParticipants:    maxParticipants,
		IsRecordingEnabled: recording,
	}

	err := p.withTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO call_rooms (id, chat_room_id, created_by, is_active, max_participants, is_recording_enabled)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING created_at`,
			call.ID, call.ChatRoomID, call.CreatedBy, call.IsActive, call.MaxParticipants, call.IsRecordingEnabled,
		).Scan(&call.CreatedAt)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO call_participants (call_room_id, user_id, joined_at, last_active_at)
			 VALUES ($1, $2, $3, $3)`,
			call.ID, creator, call.CreatedAt)
		return err
	})
	if err != nil {
		return domain.CallRoom{}, err
	}
	return call, nil
}

func (p *Postgres) GetCallRoom(ctx context.Context, callID uuid.UUID) (domain.CallRoom, error) {
	var call domain.CallRoom
	err := p.pool.QueryRow(ctx,
		`SELECT id, chat_room_id, created_by, is_active, max_participants, is_recording_enabled, created_at
		 FROM call_rooms WHERE id = $1`,
		callID,
	).Scan(&call.ID, &call.ChatRoomID, &call.CreatedBy, &call.IsActive, &call.MaxParticipants, &call.IsRecordingEnabled, &call.CreatedAt)
	if err != nil {
		return domain.CallRoom{}, wrapErr(err)
	}
	return call, nil
}

func (p *Postgres) JoinCall(ctx context.Context, callID, userID uuid.UUID) (domain.CallParticipant, error) {
	var part domain.CallParticipant
	err := p.withTx(ctx, func(tx pgx.Tx) error {
		var active bool
		var max int
		err := tx.QueryRow(ctx,
			`SELECT is_active, max_participants FROM call_rooms WHERE id = $1 FOR UPDATE`,
			callID,
		).Scan(&active, &max)
		if err != nil {
			return err
		}
		if !active {
			return comms_errors.ErrCallEnded
		}

		var count int
		if err := tx.QueryRow(ctx,
			`SELECT count(*) FROM call_participants WHERE call_room_id = $1`, callID,
		).Scan(&count); err != nil {
			return err
		}

		now := time.Now().UTC()
		// Rejoining just refreshes last_active_at, so it never counts against
		// the cap.
		tag, err := tx.Exec(ctx,
			`UPDATE call_participants SET last_active_at = $3
			 WHERE call_room_id = $1 AND user_id = $2`,
			callID, userID, now)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			if count >= max {
				return comms_errors.ErrRoomFull
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO call_participants (call_room_id, user_id, joined_at, last_active_at)
				 VALUES ($1, $2, $3, $3)`,
				callID, userID, now); err != nil {
				return err
			}
		}

		return tx.QueryRow(ctx,
			`SELECT call_room_id, user_id, joined_at, last_active_at, audio_muted, video_muted
			 FROM call_participants WHERE call_room_id = $1 AND user_id = $2`,
			callID, userID,
		).Scan(&part.CallID, &part.UserID, &part.JoinedAt, &part.LastActiveAt, &part.AudioMuted, &part.VideoMuted)
	})
	if err != nil {
		return domain.CallParticipant{}, err
	}
	return part, nil
}

func (p *Postgres) LeaveCall(ctx context.Context, callID, userID uuid.UUID) error {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM call_participants WHERE call_room_id = $1 AND user_id = $2`,
		callID, userID)
	if err != nil {
		return wrapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return comms_errors.ErrNotFound
	}
	return nil
}

func (p *Postgres) IsCallParticipant(ctx context.Context, callID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM call_participants WHERE call_room_id = $1 AND user_id = $2)`,
		callID, userID,
	).Scan(&exists)
	return exists, wrapErr(err)
}

func (p *Postgres) CallParticipants(ctx context.Context, callID uuid.UUID) ([]domain.CallParticipant, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT call_room_id, user_id, joined_at, last_active_at, audio_muted, video_muted
		 FROM call_participants WHERE call_room_id = $1 ORDER BY joined_at`,
		callID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var out []domain.CallParticipant
	for rows.Next() {
		var cp domain.CallParticipant
		if err := rows.Scan(&cp.CallID, &cp.UserID, &cp.JoinedAt, &cp.LastActiveAt, &cp.AudioMuted, &cp.VideoMuted); err != nil {
			return nil, wrapErr(err)
		}
		out = append(out, cp)
	}
	return out, wrapErr(rows.Err())
}

func (p *Postgres) SetMute(ctx context.Context, callID, userID uuid.UUID, track Track, muted bool) error {
	column := "audio_muted"
	if track == TrackVideo {
		column = "video_muted"
	}
	tag, err := p.pool.Exec(ctx,
		`UPDATE call_participants SET `+column+` = $3, last_active_at = now()
		 WHERE call_room_id = $1 AND user_id = $2`,
		callID, userID, muted)
	if err != nil {
		return wrapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return comms_errors.ErrNotFound
	}
	return nil
}

func (p *Postgres) EndCall(ctx context.Context, callID uuid.UUID) error {
	return p.withTx(ctx, func(tx pgx.Tx) error {
		if err := lockRoom(ctx, tx, "call_rooms", callID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`UPDATE call_rooms SET is_active = false WHERE id = $1 AND is_active`, callID)
		return err
	})
}
