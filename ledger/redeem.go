/*
redeem.go - FIFO redemption engine

PURPOSE:
  Exchanges available points for a reward. The whole operation is one
  atomic transaction under the store's write lock: resolve customer and
  reward, re-check the available balance under lock, consume grants
  oldest-first until the cost is covered, record the redemption.

FIFO, WHOLE GRANTS:
  Grants are consumed in creation order and always whole. The last
  grant touched may over-cover the cost; the surplus is forfeited, not
  split into a remainder grant. Redeeming 70 points against grants of
  50+30+40 consumes the 50 and the 30 - available drops by 80.

DOUBLE-SPEND:
  Two concurrent redemptions for the same customer serialize on the
  store lock. The second transaction re-reads the grants after the
  first commits and fails with InsufficientPointsError if the balance
  no longer covers the cost. No optimistic retry is attempted; the
  operator resubmits manually.

FAILURE SEMANTICS:
  Any error after the transaction opens rolls back every mutation: no
  grant stays flipped, no redemption row exists.
*/
package ledger

import (
	"context"
	"time"

	"github.com/segmentio/ksuid"
)

// =============================================================================
// REDEMPTION ENGINE
// =============================================================================

// RedeemResult reports a successful redemption.
type RedeemResult struct {
	Redemption     Redemption
	Cost           int64
	Remaining      int64    // available balance after consumption
	ConsumedGrants []string // grant IDs flipped, oldest first
}

// RedemptionEngine consumes grants to satisfy reward redemptions.
type RedemptionEngine struct {
	Store Store
	Now   func() time.Time
}

func NewRedemptionEngine(store Store) *RedemptionEngine {
	return &RedemptionEngine{Store: store, Now: time.Now}
}

// Redeem exchanges the customer's points for the reward, atomically.
func (e *RedemptionEngine) Redeem(ctx context.Context, rawCPF, rewardID, operatorID string) (*RedeemResult, error) {
	cpf := CanonicalCPF(rawCPF)
	if !ValidCPF(cpf) {
		return nil, ErrInvalidCPF
	}

	var result RedeemResult

	err := e.Store.InTx(ctx, func(tx Tx) error {
		customer, err := tx.CustomerByCPF(ctx, cpf)
		if err != nil {
			return err
		}
		if customer == nil {
			return ErrCustomerNotFound
		}

		reward, err := tx.RewardByID(ctx, rewardID)
		if err != nil {
			return err
		}
		if reward == nil || !reward.Active {
			return ErrRewardNotFound
		}

		grants, err := tx.GrantsForCustomer(ctx, customer.ID)
		if err != nil {
			return err
		}

		now := e.Now().UTC()
		snapshot := ComputeBalance(grants, now)
		if snapshot.Available < reward.Cost {
			return &InsufficientPointsError{
				CustomerID: customer.ID,
				Available:  snapshot.Available,
				Requested:  reward.Cost,
			}
		}

		redemption := Redemption{
			ID:         ksuid.New().String(),
			CustomerID: customer.ID,
			RewardID:   reward.ID,
			Points:     reward.Cost,
			CreatedAt:  now,
			RedeemedBy: operatorID,
		}

		// Oldest available grants first, consumed whole.
		remaining := reward.Cost
		var consumed []string
		var spent int64
		for _, g := range grants {
			if remaining <= 0 {
				break
			}
			if !g.AvailableAt(now) {
				continue
			}
			if err := tx.ConsumeGrant(ctx, g.ID, redemption.ID); err != nil {
				return err
			}
			consumed = append(consumed, g.ID)
			spent += g.Points
			remaining -= g.Points
		}

		if err := tx.InsertRedemption(ctx, redemption); err != nil {
			return err
		}

		result = RedeemResult{
			Redemption:     redemption,
			Cost:           reward.Cost,
			Remaining:      snapshot.Available - spent,
			ConsumedGrants: consumed,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
