package query

import (
	"context"

	"github.com/superheroes-club/luz-engine/internal/application/access"
	"github.com/superheroes-club/luz-engine/internal/domain/challenge"
	"github.com/superheroes-club/luz-engine/internal/domain/store"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST SUBMISSIONS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// ListSubmissionsQuery selects a child's submissions.
type ListSubmissionsQuery struct {
	Actor   access.Actor
	ChildID string

	// Status is a comma separated list, empty means all.
	Status string
}

// SubmissionsDTO is a filtered submission list.
type SubmissionsDTO struct {
	ChildID     string                  `json:"childId"`
	Status      []string                `json:"status,omitempty"`
	Submissions []*challenge.Submission `json:"submissions"`
	Total       int                     `json:"total"`
}

// ListSubmissionsHandler handles ListSubmissionsQuery.
type ListSubmissionsHandler struct {
	uow store.UnitOfWorkFactory
}

// NewListSubmissionsHandler creates a new ListSubmissionsHandler.
func NewListSubmissionsHandler(uow store.UnitOfWorkFactory) *ListSubmissionsHandler {
	return &ListSubmissionsHandler{uow: uow}
}

// Handle returns submissions newest first.
func (h *ListSubmissionsHandler) Handle(ctx context.Context, q ListSubmissionsQuery) (*SubmissionsDTO, error) {
	filter, err := challenge.ParseStatusFilter(q.Status)
	if err != nil {
		return nil, err
	}

	out := SubmissionsDTO{ChildID: q.ChildID, Status: filter.Strings()}
	err = store.Read(ctx, h.uow, func(uow store.UnitOfWork) error {
		c, err := loadChild(ctx, uow, q.Actor, q.ChildID)
		if err != nil {
			return err
		}
		out.Submissions, err = uow.Submissions().ListByChild(ctx, c.ID, filter)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out.Submissions == nil {
		out.Submissions = []*challenge.Submission{}
	}
	out.Total = len(out.Submissions)
	return &out, nil
}
