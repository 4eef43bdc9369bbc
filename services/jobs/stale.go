package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/nexus/core"
	"github.com/trezcool/nexus/core/notification"
	"github.com/trezcool/nexus/core/request"
	"github.com/trezcool/nexus/core/user"
	"github.com/trezcool/nexus/services/metrics"
)

const StaleRequestsJob = "stale_requests"

var nowFunc = time.Now // mockable

type (
	StaleFinder interface {
		Stale(ctx context.Context, before time.Time) ([]request.Request, error)
	}

	AdminDirectory interface {
		Query(ctx context.Context, filter user.QueryFilter, orderings []core.DBOrdering) ([]user.User, error)
	}
)

// StaleRequests warns the admins about requests left pending for too long, once per request.
type StaleRequests struct {
	requests   StaleFinder
	admins     AdminDirectory
	notifier   request.Notifier
	staleAfter time.Duration

	mu       sync.Mutex
	notified map[string]struct{}
}

func NewStaleRequests(requests StaleFinder, admins AdminDirectory, notifier request.Notifier, staleAfter time.Duration) *StaleRequests {
	return &StaleRequests{
		requests:   requests,
		admins:     admins,
		notifier:   notifier,
		staleAfter: staleAfter,
		notified:   make(map[string]struct{}),
	}
}

func (job *StaleRequests) Run(ctx context.Context) error {
	now := nowFunc().UTC()
	stale, err := job.requests.Stale(ctx, now.Add(-job.staleAfter))
	if err != nil {
		return errors.Wrap(err, "finding stale requests")
	}
	metrics.StaleRequests.Set(float64(len(stale)))

	job.mu.Lock()
	defer job.mu.Unlock()

	// forget the requests decided since the last run
	current := make(map[string]struct{}, len(stale))
	for _, req := range stale {
		current[req.ID] = struct{}{}
	}
	for id := range job.notified {
		if _, ok := current[id]; !ok {
			delete(job.notified, id)
		}
	}

	var fresh []request.Request
	for _, req := range stale {
		if _, ok := job.notified[req.ID]; !ok {
			fresh = append(fresh, req)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	admins, err := job.admins.Query(ctx, user.QueryFilter{Role: user.RoleAdmin}, nil)
	if err != nil {
		return errors.Wrap(err, "finding admins")
	}
	for _, req := range fresh {
		days := int(now.Sub(req.Date).Hours() / 24)
		text := fmt.Sprintf("La solicitud de <strong>%s</strong> de %s lleva %d días pendiente.", req.Type, req.StudentName, days)
		for _, admin := range admins {
			if err := job.notifier.Push(ctx, admin.ID, notification.TypeWarning, text); err != nil {
				return errors.Wrap(err, "notifying admin")
			}
		}
		job.notified[req.ID] = struct{}{}
	}
	return nil
}
