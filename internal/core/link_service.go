package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// LinkService is the event-sourced contract↔document link ledger. A link's
// base row is immutable; every amount change is an appended signed-delta
// event and the current state is materialized on read.
//
// Lock order inside every mutating call: contract row → document row → all
// link rows for that document → all event rows for those links.
type LinkService struct {
	pool    *pgxpool.Pool
	audit   *AuditRecorder
	amounts AmountPolicy
}

func NewLinkService(pool *pgxpool.Pool, audit *AuditRecorder, amounts AmountPolicy) *LinkService {
	return &LinkService{pool: pool, audit: audit, amounts: amounts}
}

// CreateLinkInput is the payload for linking a document to a contract.
type CreateLinkInput struct {
	ContractID int64            `json:"contract_id"`
	DocumentID int64            `json:"document_id"`
	LinkType   LinkType         `json:"link_type"`
	AmountTxn  decimal.Decimal  `json:"amount_txn"`
	AmountBase decimal.Decimal  `json:"amount_base"`
	FxRate     *decimal.Decimal `json:"fx_rate,omitempty"`
}

// Create links a document to a contract with a base amount, after verifying
// contract/document state, direction compatibility and the document-wide
// amount cap across all existing active links.
func (s *LinkService) Create(ctx context.Context, scope Scope, input CreateLinkInput) (*Link, error) {
	switch input.LinkType {
	case LinkTypeBilling, LinkTypeAdvance, LinkTypeAdjustment:
	default:
		return nil, validationf("link_type", "unknown link type %q", input.LinkType)
	}
	if !input.AmountTxn.IsPositive() || !input.AmountBase.IsPositive() {
		return nil, validationf("amount", "linked amounts must be positive")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	contract, err := lockContract(ctx, tx, scope, input.ContractID)
	if err != nil {
		return nil, err
	}
	if contract.Status != ContractDraft && contract.Status != ContractActive {
		return nil, fmt.Errorf("contract %d is %s, linking requires DRAFT or ACTIVE: %w",
			contract.ID, contract.Status, ErrInvalidState)
	}

	doc, err := lockDocument(ctx, tx, scope, input.DocumentID)
	if err != nil {
		return nil, err
	}
	if !linkableDocumentStatuses[doc.Status] {
		return nil, fmt.Errorf("document %d is %s, linking requires POSTED, PARTIALLY_SETTLED or SETTLED: %w",
			doc.ID, doc.Status, ErrInvalidState)
	}
	if doc.Direction != contract.Type.Direction() {
		return nil, validationf("document_id", "%s contract cannot link a %s document",
			contract.Type, doc.Direction)
	}

	var exists bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM contract_document_links
		              WHERE contract_id = $1 AND document_id = $2 AND link_type = $3)`,
		input.ContractID, input.DocumentID, input.LinkType,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check existing link: %w", err)
	}
	if exists {
		return nil, validationf("link_type", "document %d is already linked to contract %d as %s",
			input.DocumentID, input.ContractID, input.LinkType)
	}

	fxRate, err := s.resolveFxRate(input, contract, doc)
	if err != nil {
		return nil, err
	}

	// The cap is document-wide, so every link for the document and its full
	// event history are locked before summing.
	links, err := lockLinksForDocument(ctx, tx, doc.ID)
	if err != nil {
		return nil, err
	}
	if err := s.materializeAll(ctx, tx, links); err != nil {
		return nil, err
	}
	if err := s.checkCap(doc, links, input.AmountTxn, input.AmountBase); err != nil {
		return nil, err
	}

	var linkID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO contract_document_links (tenant_id, contract_id, document_id, link_type,
		                                     amount_txn, amount_base, contract_currency,
		                                     document_currency, fx_rate, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		scope.TenantID, input.ContractID, input.DocumentID, input.LinkType,
		s.amounts.Normalize(input.AmountTxn), s.amounts.Normalize(input.AmountBase),
		contract.Currency, doc.Currency, fxRate, scope.ActorID,
	).Scan(&linkID)
	if err != nil {
		if isUniqueViolation(err, "contract_document_links_tuple_key") {
			return nil, validationf("link_type", "document %d is already linked to contract %d as %s",
				input.DocumentID, input.ContractID, input.LinkType)
		}
		return nil, fmt.Errorf("insert link: %w", err)
	}

	if err := s.audit.Record(ctx, tx, scope, "link.create", "contract_document_link", linkID, map[string]any{
		"contract_id": input.ContractID,
		"document_id": input.DocumentID,
		"link_type":   input.LinkType,
		"amount_txn":  input.AmountTxn,
		"amount_base": input.AmountBase,
		"fx_rate":     fxRate,
	}); err != nil {
		return nil, err
	}

	link, err := s.readLink(ctx, tx, scope, linkID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit link: %w", err)
	}
	return link, nil
}

// Adjust appends an ADJUST event moving the link's effective amount to the
// given targets. Full removal must go through Unlink.
func (s *LinkService) Adjust(ctx context.Context, scope Scope, linkID int64, nextTxn, nextBase decimal.Decimal, reason string) (*Link, error) {
	if reason == "" {
		return nil, validationf("reason", "adjustment reason is required")
	}
	if s.amounts.IsZero(nextTxn) && s.amounts.IsZero(nextBase) {
		return nil, validationf("amount", "target effective amount must be nonzero; use unlink for full removal")
	}
	if nextTxn.IsNegative() || nextBase.IsNegative() {
		return nil, validationf("amount", "target effective amount must not be negative")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	link, doc, links, err := s.lockForMutation(ctx, tx, scope, linkID)
	if err != nil {
		return nil, err
	}
	if link.IsUnlinked {
		return nil, fmt.Errorf("link %d is unlinked and cannot be adjusted: %w", linkID, ErrInvalidState)
	}

	deltaTxn := s.amounts.Normalize(nextTxn.Sub(link.EffectiveTxn))
	deltaBase := s.amounts.Normalize(nextBase.Sub(link.EffectiveBase))
	if s.amounts.IsZero(deltaTxn) && s.amounts.IsZero(deltaBase) {
		return nil, validationf("amount", "adjustment is a no-op: target equals current effective amount")
	}

	// The cap must hold after the adjustment, across every active link on
	// the document.
	if err := s.checkCapExcluding(doc, links, linkID, nextTxn, nextBase); err != nil {
		return nil, err
	}

	if err := s.appendEvent(ctx, tx, linkID, LinkActionAdjust, deltaTxn, deltaBase, reason, scope.ActorID); err != nil {
		return nil, err
	}

	if err := s.audit.Record(ctx, tx, scope, "link.adjust", "contract_document_link", linkID, map[string]any{
		"delta_txn":  deltaTxn,
		"delta_base": deltaBase,
		"reason":     reason,
	}); err != nil {
		return nil, err
	}

	out, err := s.readLink(ctx, tx, scope, linkID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit adjustment: %w", err)
	}
	return out, nil
}

// Unlink appends the negating delta for the link's current effective amount
// plus an UNLINK marker. An unlinked link contributes zero everywhere.
func (s *LinkService) Unlink(ctx context.Context, scope Scope, linkID int64, reason string) (*Link, error) {
	if reason == "" {
		return nil, validationf("reason", "unlink reason is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	link, _, _, err := s.lockForMutation(ctx, tx, scope, linkID)
	if err != nil {
		return nil, err
	}
	if link.IsUnlinked {
		return nil, fmt.Errorf("link %d is already unlinked: %w", linkID, ErrInvalidState)
	}

	deltaTxn := s.amounts.Normalize(link.EffectiveTxn.Neg())
	deltaBase := s.amounts.Normalize(link.EffectiveBase.Neg())
	if err := s.appendEvent(ctx, tx, linkID, LinkActionUnlink, deltaTxn, deltaBase, reason, scope.ActorID); err != nil {
		return nil, err
	}

	if err := s.audit.Record(ctx, tx, scope, "link.unlink", "contract_document_link", linkID, map[string]any{
		"delta_txn":  deltaTxn,
		"delta_base": deltaBase,
		"reason":     reason,
	}); err != nil {
		return nil, err
	}

	out, err := s.readLink(ctx, tx, scope, linkID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit unlink: %w", err)
	}
	return out, nil
}

// Get returns one link with its materialized state and event history.
func (s *LinkService) Get(ctx context.Context, scope Scope, linkID int64) (*Link, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)
	link, err := s.readLink(ctx, tx, scope, linkID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit read: %w", err)
	}
	return link, nil
}

// ListByContract returns all links of a contract, materialized.
func (s *LinkService) ListByContract(ctx context.Context, scope Scope, contractID int64) ([]Link, error) {
	rows, err := s.pool.Query(ctx, linkSelect+`
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
		events, err := s.fetchEvents(ctx, s.pool, links[i].ID)
		if err != nil {
			return nil, err
		}
		if err := s.materialize(&links[i], events); err != nil {
			return nil, err
		}
	}
	return links, nil
}

// ── internals ────────────────────────────────────────────────────────────────

const linkSelect = `
	SELECT l.id, l.tenant_id, l.contract_id, l.document_id, l.link_type,
	       l.amount_txn, l.amount_base, l.contract_currency, l.document_currency,
	       l.fx_rate, l.created_by, l.created_at
	FROM contract_document_links l`

// resolveFxRate applies the fixed precedence: explicit caller rate → the
// document's own rate → ratio of the requested amounts → 1 when both sides
// share a currency. Changing this order silently changes recognized revenue,
// so it stays exactly as documented.
func (s *LinkService) resolveFxRate(input CreateLinkInput, contract *Contract, doc *CariDocument) (decimal.Decimal, error) {
	if input.FxRate != nil {
		if !input.FxRate.IsPositive() {
			return decimal.Zero, validationf("fx_rate", "fx rate must be positive")
		}
		return s.amounts.NormalizeFx(*input.FxRate), nil
	}
	if doc.FxRate != nil && doc.FxRate.IsPositive() {
		return s.amounts.NormalizeFx(*doc.FxRate), nil
	}
	if input.AmountTxn.IsPositive() {
		ratio := input.AmountBase.Div(input.AmountTxn)
		if ratio.IsPositive() {
			return s.amounts.NormalizeFx(ratio), nil
		}
	}
	if contract.Currency == doc.Currency {
		return decimal.NewFromInt(1), nil
	}
	return decimal.Zero, validationf("fx_rate", "cannot resolve an fx rate between %s and %s",
		contract.Currency, doc.Currency)
}

// lockDocument locks the document row in scope.
func lockDocument(ctx context.Context, tx pgx.Tx, scope Scope, documentID int64) (*CariDocument, error) {
	d := &CariDocument{}
	err := tx.QueryRow(ctx, `
		SELECT id, tenant_id, legal_entity_id, counterparty_id, direction, doc_type, status,
		       document_number, document_date::text, due_date::text, currency, fx_rate,
		       amount_txn, amount_base, open_amount_txn, open_amount_base,
		       integration_link_status, created_at
		FROM cari_documents
		WHERE id = $1 AND tenant_id = $2 AND legal_entity_id = $3
		FOR UPDATE`,
		documentID, scope.TenantID, scope.LegalEntityID,
	).Scan(
		&d.ID, &d.TenantID, &d.LegalEntityID, &d.CounterpartyID, &d.Direction, &d.DocType, &d.Status,
		&d.DocumentNumber, &d.DocumentDate, &d.DueDate, &d.Currency, &d.FxRate,
		&d.AmountTxn, &d.AmountBase, &d.OpenAmountTxn, &d.OpenAmountBase,
		&d.IntegrationLinkStatus, &d.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("document %d: %w", documentID, ErrNotFound)
		}
		return nil, fmt.Errorf("lock document %d: %w", documentID, err)
	}
	return d, nil
}

// lockLinksForDocument locks every link row targeting the document, then the
// full event history for those links, preserving the global lock order.
func lockLinksForDocument(ctx context.Context, tx pgx.Tx, documentID int64) ([]Link, error) {
	rows, err := tx.Query(ctx, linkSelect+`
		WHERE l.document_id = $1
		ORDER BY l.id
		FOR UPDATE`,
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("lock links for document %d: %w", documentID, err)
	}
	defer rows.Close()
	links, err := scanLinks(rows)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		SELECT e.id FROM contract_link_events e
		JOIN contract_document_links l ON l.id = e.link_id
		WHERE l.document_id = $1
		ORDER BY e.id
		FOR UPDATE OF e`,
		documentID,
	); err != nil {
		return nil, fmt.Errorf("lock link events for document %d: %w", documentID, err)
	}
	return links, nil
}

// lockForMutation resolves the link, then acquires locks in the global order
// (contract → document → all links → all events) and returns the link
// materialized from its locked history.
func (s *LinkService) lockForMutation(ctx context.Context, tx pgx.Tx, scope Scope, linkID int64) (*Link, *CariDocument, []Link, error) {
	var contractID, documentID int64
	err := tx.QueryRow(ctx,
		"SELECT contract_id, document_id FROM contract_document_links WHERE id = $1 AND tenant_id = $2",
		linkID, scope.TenantID,
	).Scan(&contractID, &documentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, nil, fmt.Errorf("link %d: %w", linkID, ErrNotFound)
		}
		return nil, nil, nil, fmt.Errorf("resolve link %d: %w", linkID, err)
	}

	if _, err := lockContract(ctx, tx, scope, contractID); err != nil {
		return nil, nil, nil, err
	}
	doc, err := lockDocument(ctx, tx, scope, documentID)
	if err != nil {
		return nil, nil, nil, err
	}
	links, err := lockLinksForDocument(ctx, tx, doc.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := s.materializeAll(ctx, tx, links); err != nil {
		return nil, nil, nil, err
	}

	var link *Link
	for i := range links {
		if links[i].ID == linkID {
			link = &links[i]
			break
		}
	}
	if link == nil {
		return nil, nil, nil, fmt.Errorf("link %d vanished under lock: %w", linkID, ErrIntegrity)
	}
	return link, doc, links, nil
}

func (s *LinkService) appendEvent(ctx context.Context, tx pgx.Tx, linkID int64, action LinkAction, deltaTxn, deltaBase decimal.Decimal, reason string, actorID int64) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO contract_link_events (link_id, action, delta_txn, delta_base, reason, actor_id)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		linkID, action, deltaTxn, deltaBase, reason, actorID,
	); err != nil {
		return fmt.Errorf("append %s event for link %d: %w", action, linkID, err)
	}
	return nil
}

type eventSource interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *LinkService) fetchEvents(ctx context.Context, q eventSource, linkID int64) ([]LinkEvent, error) {
	rows, err := q.Query(ctx, `
		SELECT id, link_id, action, delta_txn, delta_base, reason, actor_id, created_at
		FROM contract_link_events
		WHERE link_id = $1
		ORDER BY id`,
		linkID,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch events for link %d: %w", linkID, err)
	}
	defer rows.Close()

	var events []LinkEvent
	for rows.Next() {
		var e LinkEvent
		if err := rows.Scan(&e.ID, &e.LinkID, &e.Action, &e.DeltaTxn, &e.DeltaBase, &e.Reason, &e.ActorID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan link event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate link events: %w", err)
	}
	return events, nil
}

// materialize applies the materialization rule:
// effective = normalize(base + Σ deltas), isUnlinked = ∃ UNLINK event.
// ADJUST and UNLINK deltas alike feed the sum; UNLINK events negate whatever
// was effective, so the sum lands on zero for unlinked links. A negative
// effective amount indicates corrupted history and is rejected here, at read
// time, for every consumer identically.
func (s *LinkService) materialize(link *Link, events []LinkEvent) error {
	effTxn, effBase := link.AmountTxn, link.AmountBase
	unlinked := false
	for _, e := range events {
		effTxn = effTxn.Add(e.DeltaTxn)
		effBase = effBase.Add(e.DeltaBase)
		if e.Action == LinkActionUnlink {
			unlinked = true
		}
	}
	link.EffectiveTxn = s.amounts.Normalize(effTxn)
	link.EffectiveBase = s.amounts.Normalize(effBase)
	link.IsUnlinked = unlinked
	link.Events = events

	if link.EffectiveTxn.IsNegative() || link.EffectiveBase.IsNegative() {
		return fmt.Errorf("link %d has negative effective amount %s/%s: %w",
			link.ID, link.EffectiveTxn, link.EffectiveBase, ErrIntegrity)
	}
	return nil
}

func (s *LinkService) materializeAll(ctx context.Context, tx pgx.Tx, links []Link) error {
	for i := range links {
		events, err := s.fetchEvents(ctx, tx, links[i].ID)
		if err != nil {
			return err
		}
		if err := s.materialize(&links[i], events); err != nil {
			return err
		}
	}
	return nil
}

// checkCap verifies Σ effective(active links) + requested ≤ document amount
// on both currencies, epsilon-tolerant.
func (s *LinkService) checkCap(doc *CariDocument, links []Link, addTxn, addBase decimal.Decimal) error {
	return s.checkCapExcluding(doc, links, 0, addTxn, addBase)
}

// checkCapExcluding is checkCap with one link replaced by a prospective
// amount (the link being adjusted). excludeID 0 excludes nothing.
func (s *LinkService) checkCapExcluding(doc *CariDocument, links []Link, excludeID int64, addTxn, addBase decimal.Decimal) error {
	sumTxn, sumBase := addTxn, addBase
	for _, l := range links {
		if l.ID == excludeID || l.IsUnlinked {
			continue
		}
		sumTxn = sumTxn.Add(l.EffectiveTxn)
		sumBase = sumBase.Add(l.EffectiveBase)
	}
	if !s.amounts.LtOrEq(sumTxn, doc.AmountTxn) || !s.amounts.LtOrEq(sumBase, doc.AmountBase) {
		return &CapExceededError{
			DocumentID: doc.ID,
			Requested:  fmt.Sprintf("%s/%s", s.amounts.Normalize(sumTxn), s.amounts.Normalize(sumBase)),
			Available:  fmt.Sprintf("%s/%s", doc.AmountTxn, doc.AmountBase),
		}
	}
	return nil
}

// readLink re-reads a link joined with its events inside the transaction so
// the caller gets a view consistent with the mutation just committed.
func (s *LinkService) readLink(ctx context.Context, tx pgx.Tx, scope Scope, linkID int64) (*Link, error) {
	row := tx.QueryRow(ctx, linkSelect+" WHERE l.id = $1 AND l.tenant_id = $2", linkID, scope.TenantID)
	link := &Link{}
	err := row.Scan(
		&link.ID, &link.TenantID, &link.ContractID, &link.DocumentID, &link.LinkType,
		&link.AmountTxn, &link.AmountBase, &link.ContractCurrency, &link.DocumentCurrency,
		&link.FxRate, &link.CreatedBy, &link.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("link %d readback: %w", linkID, ErrIntegrity)
		}
		return nil, fmt.Errorf("read link %d: %w", linkID, err)
	}
	events, err := s.fetchEvents(ctx, tx, linkID)
	if err != nil {
		return nil, err
	}
	if err := s.materialize(link, events); err != nil {
		return nil, err
	}
	return link, nil
}

func scanLinks(rows pgx.Rows) ([]Link, error) {
	var links []Link
	for rows.Next() {
		var l Link
		if err := rows.Scan(
			&l.ID, &l.TenantID, &l.ContractID, &l.DocumentID, &l.LinkType,
			&l.AmountTxn, &l.AmountBase, &l.ContractCurrency, &l.DocumentCurrency,
			&l.FxRate, &l.CreatedBy, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}
	return links, nil
}
