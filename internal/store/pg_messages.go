package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"startuphub-comms/internal/domain"
	comms_errors "startuphub-comms/pkg/errors"
)

func (p *Postgres) InsertMessage(ctx context.Context, roomID, senderID uuid.UUID, content string) (domain.Message, []domain.Receipt, error) {
	id, sentAt, err := NewMessageID()
	if err != nil {
		return domain.Message{}, nil, err
	}
	msg := domain.Message{
		ID:       id,
		RoomID:   roomID,
		SenderID: senderID,
		Content:  content,
		SentAt:   sentAt,
	}

	var receipts []domain.Receipt
	err = p.withTx(ctx, func(tx pgx.Tx) error {
		// The room row lock serializes message inserts and mark-reads per room
		// and pins the participant snapshot the receipts fan out over.
		if err := lockRoom(ctx, tx, "rooms", roomID); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO messages (id, room_id, sender_id, content, sent_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			msg.ID, msg.RoomID, msg.SenderID, msg.Content, msg.SentAt); err != nil {
			return err
		}

		rows, err := tx.Query(ctx,
			`INSERT INTO receipts (message_id, recipient_id)
			 SELECT $1, user_id FROM participants
			 WHERE room_id = $2 AND user_id <> $3
			 RETURNING recipient_id`,
			msg.ID, roomID, senderID)
		if err != nil {
			return err
		}
		recipients, err := collectIDs(rows)
		if err != nil {
			return err
		}
		for _, r := range recipients {
			receipts = append(receipts, domain.Receipt{MessageID: msg.ID, RecipientID: r})
		}

		_, err = tx.Exec(ctx,
			`UPDATE rooms SET updated_at = $2 WHERE id = $1`, roomID, msg.SentAt)
		return err
	})
	if err != nil {
		return domain.Message{}, nil, err
	}
	return msg, receipts, nil
}

func (p *Postgres) MarkRead(ctx context.Context, roomID, userID uuid.UUID, at time.Time) error {
	return p.withTx(ctx, func(tx pgx.Tx) error {
		if err := lockRoom(ctx, tx, "rooms", roomID); err != nil {
			return err
		}

		// last_read_at is monotonic per participant.
		tag, err := tx.Exec(ctx,
			`UPDATE participants
			 SET last_read_at = GREATEST(COALESCE(last_read_at, 'epoch'::timestamptz), $3)
			 WHERE room_id = $1 AND user_id = $2`,
			roomID, userID, at)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return comms_errors.ErrForbidden
		}

		// Only unread receipts are touched, so read_at survives re-issue.
		_, err = tx.Exec(ctx,
			`UPDATE receipts SET is_read = true, read_at = $3
			 WHERE recipient_id = $2 AND NOT is_read
			   AND message_id IN (SELECT id FROM messages WHERE room_id = $1)`,
			roomID, userID, at)
		return err
	})
}

func (p *Postgres) UnreadCount(ctx context.Context, roomID, userID uuid.UUID) (int, error) {
	var count int
	err := p.pool.QueryRow(ctx,
		`SELECT count(*)
		 FROM receipts rc
		 JOIN messages m ON m.id = rc.message_id
		 WHERE rc.recipient_id = $2 AND NOT rc.is_read AND m.room_id = $1`,
		roomID, userID,
	).Scan(&count)
	return count, wrapErr(err)
}

func (p *Postgres) Receipts(ctx context.Context, messageID uuid.UUID) ([]domain.Receipt, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT message_id, recipient_id, is_read, read_at FROM receipts
		 WHERE message_id = $1 ORDER BY recipient_id`,
		messageID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var out []domain.Receipt
	for rows.Next() {
		var rc domain.Receipt
		if err := rows.Scan(&rc.MessageID, &rc.RecipientID, &rc.IsRead, &rc.ReadAt); err != nil {
			return nil, wrapErr(err)
		}
		out = append(out, rc)
	}
	return out, wrapErr(rows.Err())
}

func (p *Postgres) RecentMessages(ctx context.Context, roomID uuid.UUID, beforeID *uuid.UUID, limit int) ([]domain.Message, error) {
	if limit <= 0 || limit > MaxHistoryPage {
		limit = MaxHistoryPage
	}

	var (
		rows pgx.Rows
		err  error
	)
	if beforeID != nil {
		rows, err = p.pool.Query(ctx,
			`SELECT id, room_id, sender_id, content, sent_at FROM messages
			 WHERE room_id = $1 AND id < $2 ORDER BY id DESC LIMIT $3`,
			roomID, *beforeID, limit)
	} else {
		rows, err = p.pool.Query(ctx,
			`SELECT id, room_id, sender_id, content, sent_at FROM messages
			 WHERE room_id = $1 ORDER BY id DESC LIMIT $2`,
			roomID, limit)
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Content, &m.SentAt); err != nil {
			return nil, wrapErr(err)
		}
		out = append(out, m)
	}
	return out, wrapErr(rows.Err())
}
