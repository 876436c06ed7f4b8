/*
store.go - Persistence interface for the points ledger

PURPOSE:
  Defines the boundary between the ledger core and the database. The
  store is the only shared mutable resource in the system; every
  mutation flows through InTx, the single transactional entry point.

LOCKING CONTRACT:
  InTx runs fn inside one atomic unit of work with exclusive write
  access: concurrent InTx calls serialize, and reads performed through
  the Tx see a state no other writer can change before commit. This is
  the pessimistic lock the redemption engine relies on to prevent
  double-spend. If fn returns an error the transaction rolls back
  fully - no grant is left partially flipped.

GRANT MUTATION:
  The only update the ledger ever performs on a grant is the
  unconsumed -> consumed flip, recorded together with the redemption
  that caused it. Grants are never deleted.

IMPLEMENTATIONS:
  - store/sqlite: production store, also used in-memory by tests
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// READER - Lock-free queries
// =============================================================================

// Reader is the read-only view of the ledger store. Lookups that miss
// return (nil, nil); errors are reserved for datastore failures.
//
// Reads outside a transaction may be stale by the time a redemption is
// attempted; the redemption engine re-checks under lock.
type Reader interface {
	// CustomerByCPF resolves a customer by canonical CPF.
	CustomerByCPF(ctx context.Context, cpf string) (*Customer, error)

	// GrantsForCustomer returns all grants for a customer, oldest first.
	// The ordering is the FIFO consumption order.
	GrantsForCustomer(ctx context.Context, customerID string) ([]Grant, error)

	// RedemptionsForCustomer returns all redemptions, oldest first.
	RedemptionsForCustomer(ctx context.Context, customerID string) ([]Redemption, error)

	// RewardByID resolves a reward regardless of its active flag.
	RewardByID(ctx context.Context, id string) (*Reward, error)
}

// =============================================================================
// TX - Operations available inside a transaction
// =============================================================================

// Tx exposes the ledger operations valid inside one atomic unit of
// work. All reads see locked state; all writes commit or roll back
// together.
type Tx interface {
	Reader

	// CreateCustomer inserts a customer row.
	CreateCustomer(ctx context.Context, c Customer) error

	// NameCustomer fills the name (and optionally consent) of an
	// existing customer. The identity fields never change.
	NameCustomer(ctx context.Context, customerID, name string, consent bool, consentAt *time.Time) error

	// InsertGrant appends a grant with status unconsumed.
	InsertGrant(ctx context.Context, g Grant) error

	// ConsumeGrant flips an unconsumed grant to consumed, linking it to
	// the redemption that spent it.
	ConsumeGrant(ctx context.Context, grantID, redemptionID string) error

	// InsertRedemption appends a redemption record.
	InsertRedemption(ctx context.Context, r Redemption) error
}

// Store is the full ledger store: lock-free reads plus the
// transactional entry point.
type Store interface {
	Reader

	// InTx executes fn atomically under the store's write lock.
	// fn returning an error rolls back every write it performed.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
