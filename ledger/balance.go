/*
balance.go - Balance calculation from grants

PURPOSE:
  Answers "how many points does this customer have?" at a reference
  time. There is no stored running balance: the figures are derived by
  scanning the customer's grants, so they can never drift from the
  ledger.

FORMULA:
  The consumption flag on each grant is the single source of truth:

    available  = sum of Points over grants with release <= T < expiry
                 and status unconsumed
    pending    = sum of Points over grants with release > T
    nextExpiry = min expiry over the grants counted as available

  Redemption totals are deliberately NOT subtracted. Grants are
  consumed whole, so a grant that over-covers a redemption would be
  double-counted by a subtraction-based formula.

PURITY:
  ComputeBalance is a pure function over a grant slice, which makes it
  safe to reuse inside a redemption transaction: the engine fetches
  grants under lock and evaluates the same formula, avoiding read skew
  between the check and the consumption.
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// SNAPSHOT - Computed state at a reference time
// =============================================================================

// Snapshot is a customer's balance at a reference time.
type Snapshot struct {
	AsOf       time.Time
	Available  int64
	Pending    int64
	NextExpiry *time.Time // earliest expiry among available grants, nil if none
}

// ComputeBalance derives a Snapshot from grants at the reference time.
// Pure; the grants slice is not modified.
func ComputeBalance(grants []Grant, asOf time.Time) Snapshot {
	s := Snapshot{AsOf: asOf}
	for _, g := range grants {
		switch {
		case g.AvailableAt(asOf):
			s.Available += g.Points
			if s.NextExpiry == nil || g.ExpiresAt.Before(*s.NextExpiry) {
				exp := g.ExpiresAt
				s.NextExpiry = &exp
			}
		case g.PendingAt(asOf):
			s.Pending += g.Points
		}
	}
	return s
}

// =============================================================================
// CALCULATOR - Snapshot from the store
// =============================================================================

// BalanceCalculator reads grants from a store and computes snapshots.
type BalanceCalculator struct {
	Store Reader
	Now   func() time.Time
}

func NewBalanceCalculator(store Reader) *BalanceCalculator {
	return &BalanceCalculator{Store: store, Now: time.Now}
}

// BalanceAt computes the customer's balance at asOf.
func (c *BalanceCalculator) BalanceAt(ctx context.Context, customerID string, asOf time.Time) (Snapshot, error) {
	grants, err := c.Store.GrantsForCustomer(ctx, customerID)
	if err != nil {
		return Snapshot{}, err
	}
	return ComputeBalance(grants, asOf), nil
}

// Balance computes the customer's balance now.
func (c *BalanceCalculator) Balance(ctx context.Context, customerID string) (Snapshot, error) {
	return c.BalanceAt(ctx, customerID, c.Now())
}
