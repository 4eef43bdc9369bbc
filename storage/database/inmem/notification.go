package inmemdb

import (
	"context"

	"github.com/trezcool/nexus/core/notification"
)

type notificationRepository struct {
	db *notificationTable
}

var _ notification.Repository = (*notificationRepository)(nil)

func NewNotificationRepository(db *DB) notification.Repository {
	return &notificationRepository{db: db.notification}
}

func (repo *notificationRepository) SeedFeed(ctx context.Context, userID string, notifs []notification.Notification) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.feeds[userID]; ok {
		return nil
	}
	repo.db.feeds[userID] = append([]notification.Notification{}, notifs...)
	return nil
}

func (repo *notificationRepository) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]notification.Notification, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	notifs := make([]notification.Notification, 0)
	for _, n := range repo.db.feeds[userID] {
		if !unreadOnly || !n.Read {
			notifs = append(notifs, n)
		}
	}
	return notifs, nil
}

func (repo *notificationRepository) AddNotification(ctx context.Context, userID string, n notification.Notification) (notification.Notification, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	feed := repo.db.feeds[userID]
	n.ID = 1
	for _, other := range feed {
		if other.ID >= n.ID {
			n.ID = other.ID + 1
		}
	}
	repo.db.feeds[userID] = append(feed, n)
	return n, nil
}

func (repo *notificationRepository) MarkAsRead(ctx context.Context, userID string, id int) (notification.Notification, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	feed := repo.db.feeds[userID]
	for i := range feed {
		if feed[i].ID == id {
			feed[i].Read = true
			return feed[i], nil
		}
	}
	return notification.Notification{}, notification.ErrNotFound
}
