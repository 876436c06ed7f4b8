/*
recorder.go - Grant recording

PURPOSE:
  Turns a purchase into a point-earning event. Validates the CPF and
  the purchase value, resolves or implicitly creates the customer, and
  appends a grant with release/expiry computed from the configured
  Timing - all inside one transaction.

IMPLICIT CUSTOMERS:
  A customer can exist before ever self-registering: the first grant
  creates an anonymous stub keyed by CPF. A later grant that carries a
  display name fills the name of a still-anonymous stub; it never
  overwrites an existing name and never touches consent (consent is
  registration's job, see Register).

POINTS:
  pointsEarned = floor(value). One point per whole currency unit;
  fractions never round up.
*/
package ledger

import (
	"context"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// GRANT RECORDER
// =============================================================================

// GrantInput is a purchase to be converted into points.
type GrantInput struct {
	CPF        string // raw, formatting allowed
	Value      decimal.Decimal
	Name       string // optional display name for the customer
	OperatorID string // attribution, from the authenticated session
}

// GrantRecorder validates purchases and appends grants.
type GrantRecorder struct {
	Store  Store
	Timing Timing
	Now    func() time.Time
}

func NewGrantRecorder(store Store, timing Timing) *GrantRecorder {
	return &GrantRecorder{Store: store, Timing: timing, Now: time.Now}
}

// Record validates in, upserts the customer, and inserts the grant
// atomically. Returns the persisted grant.
func (r *GrantRecorder) Record(ctx context.Context, in GrantInput) (*Grant, error) {
	cpf := CanonicalCPF(in.CPF)
	if !ValidCPF(cpf) {
		return nil, ErrInvalidCPF
	}
	if !in.Value.IsPositive() {
		return nil, ErrInvalidAmount
	}

	now := r.Now().UTC()
	release, expiry := r.Timing.Windows(now)

	grant := Grant{
		ID:         ksuid.New().String(),
		Points:     in.Value.Floor().IntPart(),
		Value:      in.Value,
		CreatedAt:  now,
		ReleaseAt:  release,
		ExpiresAt:  expiry,
		Status:     GrantUnconsumed,
		RecordedBy: in.OperatorID,
	}

	err := r.Store.InTx(ctx, func(tx Tx) error {
		customer, err := tx.CustomerByCPF(ctx, cpf)
		if err != nil {
			return err
		}
		if customer == nil {
			customer = &Customer{
				ID:        ksuid.New().String(),
				CPF:       cpf,
				Name:      in.Name,
				CreatedAt: now,
			}
			if err := tx.CreateCustomer(ctx, *customer); err != nil {
				return err
			}
		} else if !customer.Named() && in.Name != "" {
			if err := tx.NameCustomer(ctx, customer.ID, in.Name, customer.Consent, customer.ConsentAt); err != nil {
				return err
			}
		}

		grant.CustomerID = customer.ID
		return tx.InsertGrant(ctx, grant)
	})
	if err != nil {
		return nil, err
	}
	return &grant, nil
}

// =============================================================================
// SELF-REGISTRATION
// =============================================================================

// RegisterInput is a customer self-registration.
type RegisterInput struct {
	CPF     string
	Name    string
	Consent bool
}

// Register creates a named customer, or names an anonymous stub left by
// an earlier grant. A customer that already has a name cannot
// re-register.
func (r *GrantRecorder) Register(ctx context.Context, in RegisterInput) (*Customer, error) {
	cpf := CanonicalCPF(in.CPF)
	if !ValidCPF(cpf) {
		return nil, ErrInvalidCPF
	}
	if in.Name == "" {
		return nil, ErrNameRequired
	}
	if !in.Consent {
		return nil, ErrConsentRequired
	}

	now := r.Now().UTC()
	var out Customer

	err := r.Store.InTx(ctx, func(tx Tx) error {
		existing, err := tx.CustomerByCPF(ctx, cpf)
		if err != nil {
			return err
		}
		if existing == nil {
			out = Customer{
				ID:        ksuid.New().String(),
				CPF:       cpf,
				Name:      in.Name,
				Consent:   true,
				ConsentAt: &now,
				CreatedAt: now,
			}
			return tx.CreateCustomer(ctx, out)
		}
		if existing.Named() {
			return ErrAlreadyRegistered
		}
		out = *existing
		out.Name = in.Name
		out.Consent = true
		out.ConsentAt = &now
		return tx.NameCustomer(ctx, existing.ID, in.Name, true, &now)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
