/*
reports.go - Read-only reporting queries

PURPOSE:
  The statement, dashboard, and audit views. These are pure reads over
  committed state; none of them participate in ledger transactions.

BALANCE IN REPORTS:
  Top customers are ranked by available points, which depends on
  release/expiry evaluated at "now". Grant rows are aggregated in Go
  with the same ledger predicates the balance calculator uses, rather
  than duplicating the temporal logic in SQL.
*/
package sqlite

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fidelium/pontos/ledger"
)

// =============================================================================
// STATEMENT
// =============================================================================

// Statement returns the customer's chronological credit/debit history.
func (s *Store) Statement(ctx context.Context, customerID string) ([]ledger.StatementEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	grants, err := grantsForCustomer(ctx, s.db, customerID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.points, r.created_at, w.name
		FROM redemptions r
		LEFT JOIN rewards w ON w.id = r.reward_id
		WHERE r.customer_id = ?`, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query redemptions: %w", err)
	}
	defer rows.Close()

	entries := make([]ledger.StatementEntry, 0, len(grants))
	for _, g := range grants {
		entries = append(entries, ledger.StatementEntry{
			Kind:        ledger.EntryCredit,
			Points:      g.Points,
			At:          g.CreatedAt,
			Description: fmt.Sprintf("Compra de R$ %s", g.Value.StringFixed(2)),
		})
	}
	for rows.Next() {
		var points int64
		var createdAt string
		var rewardName string
		if err := rows.Scan(&points, &createdAt, &rewardName); err != nil {
			return nil, fmt.Errorf("failed to scan redemption: %w", err)
		}
		at, err := parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		entries = append(entries, ledger.StatementEntry{
			Kind:        ledger.EntryDebit,
			Points:      points,
			At:          at,
			Description: fmt.Sprintf("Resgate: %s", rewardName),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].At.Before(entries[j].At) })
	return entries, nil
}

// =============================================================================
// DASHBOARD
// =============================================================================

// DashboardStats aggregates program-wide figures for the admin view.
type DashboardStats struct {
	TotalCustomers         int64
	TotalPointsDistributed int64
	TotalRedemptions       int64
	TopCustomers           []TopCustomer
}

// TopCustomer is one row of the available-points ranking.
type TopCustomer struct {
	Name      string
	CPF       string
	Available int64
}

// Dashboard computes program-wide statistics as of now.
func (s *Store) Dashboard(ctx context.Context, now time.Time, topN int) (*DashboardStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &DashboardStats{}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM customers`).Scan(&stats.TotalCustomers); err != nil {
		return nil, fmt.Errorf("failed to count customers: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(points), 0) FROM grants`).Scan(&stats.TotalPointsDistributed); err != nil {
		return nil, fmt.Errorf("failed to sum grants: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM redemptions`).Scan(&stats.TotalRedemptions); err != nil {
		return nil, fmt.Errorf("failed to count redemptions: %w", err)
	}

	// Available points per customer, aggregated in Go so the
	// release/expiry predicates match the balance calculator.
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.cpf, g.points, g.release_at, g.expires_at
		FROM grants g
		JOIN customers c ON c.id = g.customer_id
		WHERE g.status = 'unconsumed'`)
	if err != nil {
		return nil, fmt.Errorf("failed to query unconsumed grants: %w", err)
	}
	defer rows.Close()

	type acc struct {
		name      string
		cpf       string
		available int64
	}
	byCustomer := map[string]*acc{}
	for rows.Next() {
		var id, name, cpf, releaseAt, expiresAt string
		var points int64
		if err := rows.Scan(&id, &name, &cpf, &points, &releaseAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		release, err := parseTime(releaseAt)
		if err != nil {
			return nil, err
		}
		expiry, err := parseTime(expiresAt)
		if err != nil {
			return nil, err
		}
		if now.Before(release) || !now.Before(expiry) {
			continue
		}
		a := byCustomer[id]
		if a == nil {
			a = &acc{name: name, cpf: cpf}
			byCustomer[id] = a
		}
		a.available += points
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	top := make([]TopCustomer, 0, len(byCustomer))
	for _, a := range byCustomer {
		top = append(top, TopCustomer{Name: a.name, CPF: a.cpf, Available: a.available})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Available == top[j].Available {
			return top[i].CPF < top[j].CPF
		}
		return top[i].Available > top[j].Available
	})
	if len(top) > topN {
		top = top[:topN]
	}
	stats.TopCustomers = top
	return stats, nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

// AuditEntry is one line of operator activity: a grant (positive
// points) or a redemption (negative points).
type AuditEntry struct {
	At           time.Time
	OperatorName string
	CustomerName string
	Action       string
	Points       int64
}

// AuditLog returns operator activity, newest first, capped at limit.
func (s *Store) AuditLog(ctx context.Context, limit int) ([]AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []AuditEntry

	rows, err := s.db.QueryContext(ctx, `
		SELECT g.created_at, COALESCE(u.name, ''), c.name, g.points
		FROM grants g
		JOIN customers c ON c.id = g.customer_id
		LEFT JOIN users u ON u.id = g.recorded_by`)
	if err != nil {
		return nil, fmt.Errorf("failed to query grant activity: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e AuditEntry
		var createdAt string
		if err := rows.Scan(&createdAt, &e.OperatorName, &e.CustomerName, &e.Points); err != nil {
			return nil, fmt.Errorf("failed to scan grant activity: %w", err)
		}
		if e.At, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		e.Action = "Lançamento de pontos"
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rrows, err := s.db.QueryContext(ctx, `
		SELECT r.created_at, COALESCE(u.name, ''), c.name, r.points
		FROM redemptions r
		JOIN customers c ON c.id = r.customer_id
		LEFT JOIN users u ON u.id = r.redeemed_by`)
	if err != nil {
		return nil, fmt.Errorf("failed to query redemption activity: %w", err)
	}
	defer rrows.Close()
	for rrows.Next() {
		var e AuditEntry
		var createdAt string
		if err := rrows.Scan(&createdAt, &e.OperatorName, &e.CustomerName, &e.Points); err != nil {
			return nil, fmt.Errorf("failed to scan redemption activity: %w", err)
		}
		if e.At, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		e.Action = "Resgate de recompensa"
		e.Points = -e.Points
		entries = append(entries, e)
	}
	if err := rrows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].At.After(entries[j].At) })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
