package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/superheroes-club/luz-engine/internal/domain/notification"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

type notificationRepo struct {
	tx pgx.Tx
}

const notificationColumns = `
	id, recipient_id, child_id, kind, payload,
	title_es, title_en, body_es, body_en,
	is_read, read_at, delivered, channel, delivery_error, delivered_at, created_at`

func (r notificationRepo) Create(ctx context.Context, n *notification.Notification) error {
	payload := n.Payload
	if payload == nil {
		payload = map[string]string{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	var childID *string
	if n.ChildID != "" {
		childID = &n.ChildID
	}

	_, err = r.tx.Exec(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		n.ID, n.RecipientID, childID, string(n.Kind), raw,
		n.TitleES, n.TitleEN, n.BodyES, n.BodyEN,
		n.Read, n.ReadAt, n.Delivered, string(n.Channel), n.DeliveryError, n.DeliveredAt, n.CreatedAt,
	)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return shared.ErrChildNotFound
		}
		if IsUniqueViolation(err) {
			return shared.NewDomainError("notification", "Create", shared.ErrAlreadyExists, "notification already exists")
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r notificationRepo) GetByID(ctx context.Context, id string) (*notification.Notification, error) {
	n, err := scanNotification(r.tx.QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrNotificationNotFound
		}
		return nil, fmt.Errorf("select notification: %w", err)
	}
	return n, nil
}

func (r notificationRepo) Update(ctx context.Context, n *notification.Notification) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE notifications SET
			is_read = $2,
			read_at = $3,
			delivered = $4,
			channel = $5,
			delivery_error = $6,
			delivered_at = $7
		WHERE id = $1`,
		n.ID, n.Read, n.ReadAt, n.Delivered, string(n.Channel), n.DeliveryError, n.DeliveredAt,
	)
	if err != nil {
		return fmt.Errorf("update notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotificationNotFound
	}
	return nil
}

func (r notificationRepo) ListByRecipient(ctx context.Context, recipientID string, f notification.InboxFilter) ([]*notification.Notification, error) {
	limit := any(nil)
	if f.Limit > 0 {
		limit = f.Limit
	}
	rows, err := r.tx.Query(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE recipient_id = $1 AND (NOT $2::boolean OR NOT is_read)
		ORDER BY created_at DESC, id DESC
		OFFSET $3 LIMIT $4`, recipientID, f.UnreadOnly, f.Offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := make([]*notification.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r notificationRepo) Count(ctx context.Context, recipientID string, unreadOnly bool) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE recipient_id = $1 AND (NOT $2::boolean OR NOT is_read)`, recipientID, unreadOnly,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return n, nil
}

func (r notificationRepo) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int, error) {
	tag, err := r.tx.Exec(ctx, `
		UPDATE notifications SET is_read = TRUE, read_at = $2
		WHERE recipient_id = $1 AND NOT is_read`, recipientID, at)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanNotification(row pgx.Row) (*notification.Notification, error) {
	var (
		n             notification.Notification
		childID       *string
		kind, channel string
		payload       []byte
	)
	err := row.Scan(
		&n.ID, &n.RecipientID, &childID, &kind, &payload,
		&n.TitleES, &n.TitleEN, &n.BodyES, &n.BodyEN,
		&n.Read, &n.ReadAt, &n.Delivered, &channel, &n.DeliveryError, &n.DeliveredAt, &n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if childID != nil {
		n.ChildID = *childID
	}
	n.Kind = notification.Kind(kind)
	n.Channel = notification.ChannelType(channel)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &n.Payload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
	}
	return &n, nil
}
