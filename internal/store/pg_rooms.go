package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"startuphub-comms/internal/domain"
	comms_errors "startuphub-comms/pkg/errors"
)

func (p *Postgres) CreateRoom(ctx context.Context, name string, isGroup bool, creator uuid.UUID, members []uuid.UUID) (domain.Room, error) {
	users := dedupeWith(creator, members)
	room := domain.Room{
		ID:      uuid.New(),
		Name:    name,
		IsGroup: isGroup || len(users) > 2,
	}
	if len(users) > p.limits.MaxRoomParticipants {
		return domain.Room{}, comms_errors.ErrRoomFull
	}

	err := p.withTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO rooms (id, name, is_group) VALUES ($1, $2, $3)
			 RETURNING created_at, updated_at`,
			room.ID, room.Name, room.IsGroup,
		).Scan(&room.CreatedAt, &room.UpdatedAt)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO participants (room_id, user_id)
			 SELECT $1, unnest($2::uuid[])`,
			room.ID, users)
		return err
	})
	if err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

func (p *Postgres) GetRoom(ctx context.Context, roomID uuid.UUID) (domain.Room, error) {
	var room domain.Room
	err := p.pool.QueryRow(ctx,
		`SELECT id, name, is_group, created_at, updated_at FROM rooms WHERE id = $1`,
		roomID,
	).Scan(&room.ID, &room.Name, &room.IsGroup, &room.CreatedAt, &room.UpdatedAt)
	if err != nil {
		return domain.Room{}, wrapErr(err)
	}
	return room, nil
}

func (p *Postgres) AddParticipants(ctx context.Context, roomID uuid.UUID, userIDs []uuid.UUID) ([]uuid.UUID, error) {
	var added []uuid.UUID
	err := p.withTx(ctx, func(tx pgx.Tx) error {
		if err := lockRoom(ctx, tx, "rooms", roomID); err != nil {
			return err
		}

		var current int
		if err := tx.QueryRow(ctx,
			`SELECT count(*) FROM participants WHERE room_id = $1`, roomID,
		).Scan(&current); err != nil {
			return err
		}

		rows, err := tx.Query(ctx,
			`INSERT INTO participants (room_id, user_id)
			 SELECT $1, unnest($2::uuid[])
			 ON CONFLICT (room_id, user_id) DO NOTHING
			 RETURNING user_id`,
			roomID, dedupe(userIDs))
		if err != nil {
			return err
		}
		added, err = collectIDs(rows)
		if err != nil {
			return err
		}

		total := current + len(added)
		if total > p.limits.MaxRoomParticipants {
			return comms_errors.ErrRoomFull
		}
		if total > 2 {
			// Group identity sticks: nothing ever flips it back.
			if _, err := tx.Exec(ctx,
				`UPDATE rooms SET is_group = true WHERE id = $1 AND NOT is_group`, roomID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

func (p *Postgres) RemoveParticipant(ctx context.Context, roomID, userID uuid.UUID) error {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM participants WHERE room_id = $1 AND user_id = $2`, roomID, userID)
	if err != nil {
		return wrapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return comms_errors.ErrNotFound
	}
	return nil
}

func (p *Postgres) IsParticipant(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM participants WHERE room_id = $1 AND user_id = $2)`,
		roomID, userID,
	).Scan(&exists)
	return exists, wrapErr(err)
}

func (p *Postgres) Participants(ctx context.Context, roomID uuid.UUID) ([]domain.Participant, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT room_id, user_id, joined_at, last_read_at, last_active_at
		 FROM participants WHERE room_id = $1 ORDER BY joined_at`,
		roomID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var out []domain.Participant
	for rows.Next() {
		var pt domain.Participant
		if err := rows.Scan(&pt.RoomID, &pt.UserID, &pt.JoinedAt, &pt.LastReadAt, &pt.LastActiveAt); err != nil {
			return nil, wrapErr(err)
		}
		out = append(out, pt)
	}
	return out, wrapErr(rows.Err())
}

func (p *Postgres) ListRooms(ctx context.Context, userID uuid.UUID) ([]domain.RoomSummary, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT r.id, r.name, r.is_group, r.created_at, r.updated_at,
		        COALESCE(u.unread, 0),
		        COALESCE(m.content, '')
		 FROM rooms r
		 JOIN participants p ON p.room_id = r.id AND p.user_id = $1
		 LEFT JOIN LATERAL (
		     SELECT count(*) AS unread
		     FROM receipts rc
		     JOIN messages ms ON ms.id = rc.message_id
		     WHERE rc.recipient_id = $1 AND NOT rc.is_read AND ms.room_id = r.id
		 ) u ON true
		 LEFT JOIN LATERAL (
		     SELECT content FROM messages WHERE room_id = r.id ORDER BY id DESC LIMIT 1
		 ) m ON true
		 ORDER BY r.updated_at DESC`,
		userID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var out []domain.RoomSummary
	for rows.Next() {
		var rs domain.RoomSummary
		var preview string
		if err := rows.Scan(&rs.ID, &rs.Name, &rs.IsGroup, &rs.CreatedAt, &rs.UpdatedAt, &rs.UnreadCount, &preview); err != nil {
			return nil, wrapErr(err)
		}
		rs.LastPreview = domain.Truncate(preview, domain.PreviewLength)
		out = append(out, rs)
	}
	return out, wrapErr(rows.Err())
}

func collectIDs(rows pgx.Rows) ([]uuid.UUID, error) {
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == uuid.Nil {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func dedupeWith(first uuid.UUID, rest []uuid.UUID) []uuid.UUID {
	return dedupe(append([]uuid.UUID{first}, rest...))
}
