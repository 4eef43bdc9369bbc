package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/nexus/core/ctxutil"
	"github.com/trezcool/nexus/core/notification"
)

const notificationColumns = `id, type, text, time, read, created_at`

type notificationRepository struct {
	db *sqlx.DB
}

var _ notification.Repository = (*notificationRepository)(nil)

func NewNotificationRepository(db *sqlx.DB) notification.Repository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) SeedFeed(ctx context.Context, userID string, notifs []notification.Notification) error {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	return withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO notification_feeds (user_id) VALUES ($1) ON CONFLICT DO NOTHING`, userID)
		if err != nil {
			return errors.Wrap(err, "inserting feed")
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return err // already seeded
		}

		q := `INSERT INTO notifications (user_id, id, type, text, time, read, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`
		for _, n := range notifs {
			if _, err := tx.ExecContext(ctx, q, userID, n.ID, n.Type, n.Text, n.Time, n.Read, n.CreatedAt); err != nil {
				return errors.Wrap(err, "inserting notification")
			}
		}
		return nil
	})
}

func (repo *notificationRepository) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]notification.Notification, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	notifs := make([]notification.Notification, 0)
	q := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id::text = $1 AND (NOT $2 OR NOT read) ORDER BY id`
	if err := repo.db.SelectContext(ctx, &notifs, q, userID, unreadOnly); err != nil {
		return nil, errors.Wrap(err, "selecting notifications")
	}
	return notifs, nil
}

func (repo *notificationRepository) AddNotification(ctx context.Context, userID string, n notification.Notification) (notification.Notification, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		// the feed row serializes id assignment
		var feed string
		q := `SELECT user_id::text FROM notification_feeds WHERE user_id::text = $1 FOR UPDATE`
		if err := tx.GetContext(ctx, &feed, q, userID); err != nil && err != sql.ErrNoRows {
			return errors.Wrap(err, "locking feed")
		}
		q = `SELECT COALESCE(MAX(id), 0) + 1 FROM notifications WHERE user_id::text = $1`
		if err := tx.GetContext(ctx, &n.ID, q, userID); err != nil {
			return errors.Wrap(err, "selecting next id")
		}
		q = `INSERT INTO notifications (user_id, id, type, text, time, read, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`
		if _, err := tx.ExecContext(ctx, q, userID, n.ID, n.Type, n.Text, n.Time, n.Read, n.CreatedAt); err != nil {
			return errors.Wrap(err, "inserting notification")
		}
		return nil
	})
	if err != nil {
		return notification.Notification{}, err
	}
	return n, nil
}

func (repo *notificationRepository) MarkAsRead(ctx context.Context, userID string, id int) (notification.Notification, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var n notification.Notification
	q := `UPDATE notifications SET read = TRUE WHERE user_id::text = $1 AND id = $2 RETURNING ` + notificationColumns
	if err := repo.db.GetContext(ctx, &n, q, userID, id); err != nil {
		if err == sql.ErrNoRows {
			return notification.Notification{}, notification.ErrNotFound
		}
		return notification.Notification{}, errors.Wrap(err, "updating notification")
	}
	return n, nil
}
