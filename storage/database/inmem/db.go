package inmemdb

import (
	"context"
	"sync"

	"github.com/trezcool/nexus/core/kanban"
	"github.com/trezcool/nexus/core/notification"
	"github.com/trezcool/nexus/core/request"
	"github.com/trezcool/nexus/core/user"
)

type (
	// DB is a process-local store. Each table has its own lock.
	DB struct {
		user         *userTable
		request      *requestTable
		task         *taskTable
		notification *notificationTable
	}

	userTable struct {
		table map[string]*user.User
		mutex sync.RWMutex
	}

	requestTable struct {
		table map[string]*request.Request
		mutex sync.RWMutex
	}

	taskTable struct {
		table map[string]*kanban.Task
		mutex sync.RWMutex
	}

	notificationTable struct {
		feeds map[string][]notification.Notification // {userID: feed}
		mutex sync.RWMutex
	}
)

func Open() *DB {
	return &DB{
		user:         &userTable{table: make(map[string]*user.User)},
		request:      &requestTable{table: make(map[string]*request.Request)},
		task:         &taskTable{table: make(map[string]*kanban.Task)},
		notification: &notificationTable{feeds: make(map[string][]notification.Notification)},
	}
}

// PingContext always succeeds.
func (db *DB) PingContext(ctx context.Context) error {
	return ctx.Err()
}
