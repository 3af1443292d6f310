package booking

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type CandidateInput struct {
	Name                string `json:"name" binding:"required"`
	OnlineBufferMinutes *int   `json:"onlineBufferMinutes" binding:"omitempty,min=0,max=1439"`
	OnsiteBufferMinutes *int   `json:"onsiteBufferMinutes" binding:"omitempty,min=0,max=1439"`
	Owner               *Owner `json:"owner"`
}

// RegisterCandidate creates a candidate and issues the opaque token of their scheduling link.
func (e *Engine) RegisterCandidate(ctx context.Context, in CandidateInput) (Candidate, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Candidate{}, NewError(KindInvalidRequest, "name is required")
	}
	for _, b := range []*int{in.OnlineBufferMinutes, in.OnsiteBufferMinutes} {
		if b != nil && (*b < 0 || *b > 1439) {
			return Candidate{}, NewError(KindInvalidRequest, "buffer minutes must be between 0 and 1439")
		}
	}
	if in.Owner != nil && strings.TrimSpace(in.Owner.ID) == "" {
		return Candidate{}, NewError(KindInvalidRequest, "owner.id is required")
	}

	c := Candidate{
		ID:                  e.newID(),
		Name:                name,
		Token:               strings.ReplaceAll(uuid.NewString(), "-", ""),
		OnlineBufferMinutes: in.OnlineBufferMinutes,
		OnsiteBufferMinutes: in.OnsiteBufferMinutes,
		Owner:               in.Owner,
	}
	err := e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertCandidate(ctx, c)
	})
	if err != nil {
		e.logger.Error().Err(err).Msg("register candidate failed")
		return Candidate{}, internal(err)
	}
	e.logger.Info().Str("candidate_id", c.ID).Msg("candidate registered")
	return c, nil
}

// RegisterCompany adds a company that booking requests can reference by id.
func (e *Engine) RegisterCompany(ctx context.Context, name string) (Company, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Company{}, NewError(KindInvalidRequest, "name is required")
	}
	c := Company{ID: e.newID(), Name: name}
	err := e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertCompany(ctx, c)
	})
	if err != nil {
		return Company{}, internal(err)
	}
	return c, nil
}
