package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// RollupService computes a contract's financial position from the link
// ledger, the linked documents' settlement state and the recognition tables.
// It is strictly read-only and takes no row locks: a rollup racing a writer
// sees either the state before or after that writer's commit.
type RollupService struct {
	pool    *pgxpool.Pool
	amounts AmountPolicy
	links   *LinkService
}

func NewRollupService(pool *pgxpool.Pool, amounts AmountPolicy, links *LinkService) *RollupService {
	return &RollupService{pool: pool, amounts: amounts, links: links}
}

// Snapshot computes the rollup for one contract.
//
// Billed is the sum of effective link amounts over non-unlinked links.
// Collected attributes each document's settled fraction to its links
// pro-rata; uncollected never goes below zero. Recognition figures come from
// the schedule lines (scheduled) and the posted, non-reversal run lines
// (recognized); deferred is the floor-zero difference.
func (s *RollupService) Snapshot(ctx context.Context, scope Scope, contractID int64) (*RollupSnapshot, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	contract, err := fetchContractHeader(ctx, tx, scope, contractID)
	if err != nil {
		return nil, err
	}

	links, err := s.fetchContractLinks(ctx, tx, scope, contractID)
	if err != nil {
		return nil, err
	}

	snap := &RollupSnapshot{
		ContractID:   contractID,
		ContractType: contract.Type,
	}

	docs, err := s.fetchLinkedDocuments(ctx, tx, scope, links)
	if err != nil {
		return nil, err
	}

	allDocs := make(map[int64]bool)
	activeDocs := make(map[int64]bool)
	billedTxn, billedBase := decimal.Zero, decimal.Zero
	collectedTxn, collectedBase := decimal.Zero, decimal.Zero

	for i := range links {
		l := &links[i]
		allDocs[l.DocumentID] = true
		if l.IsUnlinked {
			continue
		}
		activeDocs[l.DocumentID] = true
		billedTxn = billedTxn.Add(l.EffectiveTxn)
		billedBase = billedBase.Add(l.EffectiveBase)

		doc, ok := docs[l.DocumentID]
		if !ok {
			return nil, fmt.Errorf("link %d references missing document %d: %w", l.ID, l.DocumentID, ErrIntegrity)
		}
		fracTxn, fracBase := s.collectedFractions(doc)
		collectedTxn = collectedTxn.Add(l.EffectiveTxn.Mul(fracTxn))
		collectedBase = collectedBase.Add(l.EffectiveBase.Mul(fracBase))
	}

	snap.LinkedDocuments = len(allDocs)
	snap.ActiveLinkedDocs = len(activeDocs)
	snap.BilledTxn = s.amounts.Normalize(billedTxn)
	snap.BilledBase = s.amounts.Normalize(billedBase)
	snap.CollectedTxn = s.amounts.Normalize(collectedTxn)
	snap.CollectedBase = s.amounts.Normalize(collectedBase)
	snap.UncollectedTxn = floorZero(s.amounts.Normalize(snap.BilledTxn.Sub(snap.CollectedTxn)))
	snap.UncollectedBase = floorZero(s.amounts.Normalize(snap.BilledBase.Sub(snap.CollectedBase)))

	if contract.Type == ContractTypeVendor {
		snap.PayableBase = snap.UncollectedBase
		snap.ReceivableBase = decimal.Zero
	} else {
		snap.ReceivableBase = snap.UncollectedBase
		snap.PayableBase = decimal.Zero
	}

	scheduled, recognized, err := s.fetchRecognition(ctx, tx, scope, contractID)
	if err != nil {
		return nil, err
	}
	snap.ScheduledBase = s.amounts.Normalize(scheduled)
	snap.RecognizedBase = s.amounts.Normalize(recognized)
	snap.DeferredBase = floorZero(s.amounts.Normalize(snap.ScheduledBase.Sub(snap.RecognizedBase)))

	snap.RecognizedCoverage = s.amounts.Percent(snap.RecognizedBase, snap.ScheduledBase)
	snap.CollectionCoverage = s.amounts.Percent(snap.CollectedBase, snap.BilledBase)

	return snap, nil
}

// floorZero treats negative aggregates as zero.
func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// collectedFractions returns the settled fraction of a document in txn and
// base terms, each clamped to [0, 1]. A zero-amount document counts as
// uncollected rather than dividing by zero.
func (s *RollupService) collectedFractions(doc *CariDocument) (decimal.Decimal, decimal.Decimal) {
	one := decimal.NewFromInt(1)
	fracTxn := decimal.Zero
	if s.amounts.IsPositive(doc.AmountTxn) {
		fracTxn = doc.AmountTxn.Sub(doc.OpenAmountTxn).Div(doc.AmountTxn)
	}
	fracBase := decimal.Zero
	if s.amounts.IsPositive(doc.AmountBase) {
		fracBase = doc.AmountBase.Sub(doc.OpenAmountBase).Div(doc.AmountBase)
	}
	clampUnit := func(d decimal.Decimal) decimal.Decimal {
		if d.IsNegative() {
			return decimal.Zero
		}
		if d.GreaterThan(one) {
			return one
		}
		return d
	}
	return clampUnit(fracTxn), clampUnit(fracBase)
}

func fetchContractHeader(ctx context.Context, tx pgx.Tx, scope Scope, contractID int64) (*Contract, error) {
	c := &Contract{}
	err := tx.QueryRow(ctx, `
		SELECT id, tenant_id, legal_entity_id, counterparty_id, contract_number, contract_type,
		       status, version, currency, start_date::text, end_date::text, total_txn, total_base,
		       notes, created_at, updated_at
		FROM contracts
		WHERE id = $1 AND tenant_id = $2 AND legal_entity_id = $3`,
		contractID, scope.TenantID, scope.LegalEntityID,
	).Scan(
		&c.ID, &c.TenantID, &c.LegalEntityID, &c.CounterpartyID, &c.ContractNumber, &c.Type,
		&c.Status, &c.Version, &c.Currency, &c.StartDate, &c.EndDate, &c.TotalTxn, &c.TotalBase,
		&c.Notes, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("contract %d: %w", contractID, ErrNotFound)
		}
		return nil, fmt.Errorf("read contract %d: %w", contractID, err)
	}
	return c, nil
}

// fetchContractLinks reads all links of the contract with their events
// materialized, without locking anything.
func (s *RollupService) fetchContractLinks(ctx context.Context, tx pgx.Tx, scope Scope, contractID int64) ([]Link, error) {
	rows, err := tx.Query(ctx, linkSelect+`
		WHERE l.contract_id = $1 AND l.tenant_id = $2
		ORDER BY l.id`,
		contractID, scope.TenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list links for contract %d: %w", contractID, err)
	}
	defer rows.Close()

	links, err := scanLinks(rows)
	if err != nil {
		return nil, err
	}
	for i := range links {
		events, err := s.links.fetchEvents(ctx, tx, links[i].ID)
		if err != nil {
			return nil, err
		}
		if err := s.links.materialize(&links[i], events); err != nil {
			return nil, err
		}
	}
	return links, nil
}

func (s *RollupService) fetchLinkedDocuments(ctx context.Context, tx pgx.Tx, scope Scope, links []Link) (map[int64]*CariDocument, error) {
	ids := make([]int64, 0, len(links))
	seen := make(map[int64]bool, len(links))
	for i := range links {
		if !seen[links[i].DocumentID] {
			seen[links[i].DocumentID] = true
			ids = append(ids, links[i].DocumentID)
		}
	}
	docs := make(map[int64]*CariDocument, len(ids))
	if len(ids) == 0 {
		return docs, nil
	}

	rows, err := tx.Query(ctx, `
		SELECT id, amount_txn, amount_base, open_amount_txn, open_amount_base
		FROM cari_documents
		WHERE id = ANY($1) AND tenant_id = $2`,
		ids, scope.TenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("read linked documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		d := &CariDocument{}
		if err := rows.Scan(&d.ID, &d.AmountTxn, &d.AmountBase, &d.OpenAmountTxn, &d.OpenAmountBase); err != nil {
			return nil, fmt.Errorf("scan linked document: %w", err)
		}
		docs[d.ID] = d
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate linked documents: %w", err)
	}
	return docs, nil
}

// fetchRecognition sums scheduled base amounts over ACTIVE schedules and
// recognized base amounts over POSTED or SETTLED non-reversal runs.
func (s *RollupService) fetchRecognition(ctx context.Context, tx pgx.Tx, scope Scope, contractID int64) (decimal.Decimal, decimal.Decimal, error) {
	var scheduled decimal.Decimal
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(sl.amount_base), 0)
		FROM recognition_schedule_lines sl
		JOIN recognition_schedules sc ON sc.id = sl.schedule_id
		WHERE sc.contract_id = $1 AND sc.tenant_id = $2 AND sc.status = 'ACTIVE'`,
		contractID, scope.TenantID,
	).Scan(&scheduled)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("sum scheduled recognition: %w", err)
	}

	var recognized decimal.Decimal
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(rl.amount_base), 0)
		FROM recognition_run_lines rl
		JOIN recognition_runs r ON r.id = rl.run_id
		WHERE r.contract_id = $1 AND r.tenant_id = $2
		  AND r.status IN ('POSTED', 'SETTLED') AND NOT r.is_reversal`,
		contractID, scope.TenantID,
	).Scan(&recognized)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("sum recognized revenue: %w", err)
	}
	return scheduled, recognized, nil
}
