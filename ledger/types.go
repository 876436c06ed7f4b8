/*
Package ledger implements the loyalty points core: grants, redemptions,
and the balance rules that connect them.

PURPOSE:
  Points are earned from purchases (1 point per whole currency unit),
  become spendable after a configurable release delay, expire after a
  configurable validity window, and are consumed oldest-first when a
  reward is redeemed. Balance is always computed by scanning grants -
  there is no persisted running total that can drift out of sync.

KEY CONCEPTS IN THIS FILE (types.go):
  - Customer: identified by CPF, may exist before it has a name
  - Grant: a point-earning event with release/expiry timestamps
  - Redemption: a point-spending event referencing a reward
  - Reward: a redeemable catalog entry (soft-deleted, never removed)
  - Timing: the two ledger timing constants, as explicit configuration

DESIGN PRINCIPLES:
  1. Grants are consumed whole, never split. A redemption may
     over-cover its cost; the consumption flag is the source of truth.
  2. Expiry is evaluated at query time. No cleanup job flips expired
     grants; they simply stop counting.
  3. Monetary values use decimal.Decimal; points are plain integers.

SEE ALSO:
  - balance.go: available/pending computation
  - recorder.go: grant creation
  - redeem.go: FIFO redemption
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CUSTOMER - Two-phase lifecycle: anonymous stub, then named
// =============================================================================

// Customer is identified by CPF. A customer created implicitly by a grant
// has no name; self-registration fills the name and consent exactly once.
type Customer struct {
	ID        string
	CPF       string // canonical form: 11 digits, no formatting
	Name      string // empty until registered
	Consent   bool
	ConsentAt *time.Time
	CreatedAt time.Time
}

// Named reports whether the customer completed registration.
// A named customer cannot re-register.
func (c Customer) Named() bool { return c.Name != "" }

// =============================================================================
// GRANT - A point-earning event
// =============================================================================

type GrantStatus string

const (
	GrantUnconsumed GrantStatus = "unconsumed"
	GrantConsumed   GrantStatus = "consumed"
)

// Grant records points earned from one purchase. Created by the
// GrantRecorder, mutated only by the RedemptionEngine (unconsumed ->
// consumed), never deleted.
type Grant struct {
	ID         string
	CustomerID string
	Points     int64           // floor(Value)
	Value      decimal.Decimal // originating purchase value
	CreatedAt  time.Time
	ReleaseAt  time.Time // CreatedAt + Timing.ReleaseDelay
	ExpiresAt  time.Time // CreatedAt + Timing.Validity
	Status     GrantStatus
	ConsumedBy string // redemption ID, empty while unconsumed
	RecordedBy string // operator who recorded the purchase
}

// AvailableAt reports whether the grant counts toward the available
// balance at t: released, not expired, not consumed.
func (g Grant) AvailableAt(t time.Time) bool {
	return g.Status == GrantUnconsumed && !t.Before(g.ReleaseAt) && t.Before(g.ExpiresAt)
}

// PendingAt reports whether the grant is earned but not yet released at t.
func (g Grant) PendingAt(t time.Time) bool {
	return g.ReleaseAt.After(t)
}

// ExpiredAt reports whether the grant's validity window has closed at t.
func (g Grant) ExpiredAt(t time.Time) bool {
	return !t.Before(g.ExpiresAt)
}

// =============================================================================
// REDEMPTION - A point-spending event
// =============================================================================

// Redemption records points spent on one reward. The cost is fixed at
// redemption time even if the reward's cost changes later. Immutable.
type Redemption struct {
	ID         string
	CustomerID string
	RewardID   string
	Points     int64 // reward cost at redemption time
	CreatedAt  time.Time
	RedeemedBy string // operator who processed the redemption
}

// =============================================================================
// REWARD - Catalog entry, soft-deleted only
// =============================================================================

// Reward is a redeemable catalog entry. Deactivation preserves
// referential integrity with historical redemptions.
type Reward struct {
	ID          string
	Name        string
	Description string
	Cost        int64
	Active      bool
	CreatedAt   time.Time
}

// =============================================================================
// TIMING - The two ledger timing constants
// =============================================================================

// Timing holds the release delay and validity window applied to new
// grants. These evolved as ad hoc constants in earlier systems; here
// they are explicit configuration handed to the GrantRecorder.
type Timing struct {
	ReleaseDelay time.Duration // 0 means points are spendable immediately
	Validity     time.Duration // window after which points expire
}

// Validate enforces the structural invariant release <= expiry.
func (t Timing) Validate() error {
	if t.ReleaseDelay < 0 {
		return ErrInvalidTiming
	}
	if t.Validity <= 0 {
		return ErrInvalidTiming
	}
	if t.ReleaseDelay > t.Validity {
		return ErrInvalidTiming
	}
	return nil
}

// Windows computes the release and expiry timestamps for a grant
// created at now.
func (t Timing) Windows(now time.Time) (release, expiry time.Time) {
	return now.Add(t.ReleaseDelay), now.Add(t.Validity)
}

// Days builds a Timing from whole-day figures, the unit the program
// rules are written in.
func Days(releaseDelay, validity int) Timing {
	return Timing{
		ReleaseDelay: time.Duration(releaseDelay) * 24 * time.Hour,
		Validity:     time.Duration(validity) * 24 * time.Hour,
	}
}

// =============================================================================
// STATEMENT - Chronological credit/debit view
// =============================================================================

type EntryKind string

const (
	EntryCredit EntryKind = "credito"
	EntryDebit  EntryKind = "debito"
)

// StatementEntry is one line of a customer's chronological statement.
// Credits are grants; debits are redemptions.
type StatementEntry struct {
	Kind        EntryKind
	Points      int64
	At          time.Time
	Description string
}
