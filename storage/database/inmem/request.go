package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/nexus/core/request"
)

type requestRepository struct {
	db *requestTable
}

var _ request.Repository = (*requestRepository)(nil)

func NewRequestRepository(db *DB) request.Repository {
	return &requestRepository{db: db.request}
}

// clone copies req, including its designation.
func clone(req request.Request) request.Request {
	if req.Designation != nil {
		des := *req.Designation
		req.Designation = &des
	}
	return req
}

func (repo *requestRepository) CreateRequest(ctx context.Context, req request.Request) (request.Request, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if req.PreviousID != "" {
		for _, r := range repo.db.table {
			if r.PreviousID == req.PreviousID {
				return request.Request{}, request.ErrInvalidTransition
			}
		}
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	stored := clone(req)
	repo.db.table[req.ID] = &stored
	return req, nil
}

func (repo *requestRepository) GetRequest(ctx context.Context, id string) (request.Request, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if req, ok := repo.db.table[id]; ok {
		return clone(*req), nil
	}
	return request.Request{}, request.ErrNotFound
}

func (repo *requestRepository) QueryRequests(ctx context.Context, filter request.QueryFilter) ([]request.Request, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	reqs := make([]request.Request, 0)
	for _, req := range repo.db.table {
		if filter.Match(*req) {
			reqs = append(reqs, clone(*req))
		}
	}
	sort.SliceStable(reqs, func(i, j int) bool { return reqs[i].Date.After(reqs[j].Date) })
	return reqs, nil
}

func (repo *requestRepository) UpdateRequest(ctx context.Context, req request.Request, fromStatus string) (request.Request, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.table[req.ID]
	if !ok {
		return request.Request{}, request.ErrNotFound
	}
	if orig.Status != fromStatus {
		return request.Request{}, request.ErrInvalidTransition
	}
	stored := clone(req)
	repo.db.table[req.ID] = &stored
	return req, nil
}
