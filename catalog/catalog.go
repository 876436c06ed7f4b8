/*
Package catalog manages the reward catalog.

PURPOSE:
  CRUD over rewards with soft deletion. Rewards referenced by
  historical redemptions are never removed; deactivation hides them
  from the public list and makes them unredeemable.

  The redemption engine sees rewards only through ledger.Tx.RewardByID;
  this package is the operator-facing management surface.
*/
package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/fidelium/pontos/ledger"
)

var (
	ErrNameRequired = errors.New("reward name is required")
	ErrInvalidCost  = errors.New("reward cost must be positive")
)

// Store persists rewards. Implemented by store/sqlite.
type Store interface {
	InsertReward(ctx context.Context, r ledger.Reward) error
	UpdateReward(ctx context.Context, r ledger.Reward) error
	DeactivateReward(ctx context.Context, id string) error
	RewardByID(ctx context.Context, id string) (*ledger.Reward, error)
	ListRewards(ctx context.Context, activeOnly bool) ([]ledger.Reward, error)
}

// Service validates and applies catalog changes.
type Service struct {
	Store Store
	Now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{Store: store, Now: time.Now}
}

// Create adds an active reward.
func (s *Service) Create(ctx context.Context, name, description string, cost int64) (*ledger.Reward, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if cost <= 0 {
		return nil, ErrInvalidCost
	}
	r := ledger.Reward{
		ID:          ksuid.New().String(),
		Name:        name,
		Description: strings.TrimSpace(description),
		Cost:        cost,
		Active:      true,
		CreatedAt:   s.Now().UTC(),
	}
	if err := s.Store.InsertReward(ctx, r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Update replaces name, description, cost, and active flag.
// Redemptions already recorded keep their original cost.
func (s *Service) Update(ctx context.Context, id, name, description string, cost int64, active bool) (*ledger.Reward, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if cost <= 0 {
		return nil, ErrInvalidCost
	}
	existing, err := s.Store.RewardByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ledger.ErrRewardNotFound
	}
	r := *existing
	r.Name = name
	r.Description = strings.TrimSpace(description)
	r.Cost = cost
	r.Active = active
	if err := s.Store.UpdateReward(ctx, r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Deactivate soft-deletes a reward.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	return s.Store.DeactivateReward(ctx, id)
}

// List returns the catalog; activeOnly gives the public view.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]ledger.Reward, error) {
	return s.Store.ListRewards(ctx, activeOnly)
}

// Get returns one reward regardless of active flag.
func (s *Service) Get(ctx context.Context, id string) (*ledger.Reward, error) {
	r, err := s.Store.RewardByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ledger.ErrRewardNotFound
	}
	return r, nil
}
