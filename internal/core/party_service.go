package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Collaborator lookups the engine depends on: counterparties, payment terms,
// accounts, legal entities and currencies. All run inside the caller's
// transaction so validation reads share its snapshot.

func getCounterparty(ctx context.Context, q pgx.Tx, scope Scope, id int64) (*Counterparty, error) {
	cp := &Counterparty{}
	err := q.QueryRow(ctx, `
		SELECT id, tenant_id, legal_entity_id, code, name, is_customer, is_vendor, status, default_payment_term_id
		FROM counterparties
		WHERE id = $1 AND tenant_id = $2 AND legal_entity_id = $3`,
		id, scope.TenantID, scope.LegalEntityID,
	).Scan(&cp.ID, &cp.TenantID, &cp.LegalEntityID, &cp.Code, &cp.Name,
		&cp.IsCustomer, &cp.IsVendor, &cp.Status, &cp.DefaultPaymentTermID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("counterparty %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("fetch counterparty %d: %w", id, err)
	}
	return cp, nil
}

// requireCounterparty fetches a counterparty and checks it is ACTIVE and
// role-compatible with the contract type (CUSTOMER contracts need a customer
// party, VENDOR contracts a vendor party).
func requireCounterparty(ctx context.Context, tx pgx.Tx, scope Scope, id int64, contractType ContractType) (*Counterparty, error) {
	cp, err := getCounterparty(ctx, tx, scope, id)
	if err != nil {
		return nil, err
	}
	if cp.Status != "ACTIVE" {
		return nil, validationf("counterparty_id", "counterparty %s is not active", cp.Code)
	}
	switch contractType {
	case ContractTypeCustomer:
		if !cp.IsCustomer {
			return nil, validationf("counterparty_id", "counterparty %s has no customer role", cp.Code)
		}
	case ContractTypeVendor:
		if !cp.IsVendor {
			return nil, validationf("counterparty_id", "counterparty %s has no vendor role", cp.Code)
		}
	default:
		return nil, validationf("contract_type", "unknown contract type %q", contractType)
	}
	return cp, nil
}

// getPaymentTerm fetches a payment term; inactive terms are rejected.
func getPaymentTerm(ctx context.Context, tx pgx.Tx, tenantID, id int64) (*PaymentTerm, error) {
	pt := &PaymentTerm{}
	err := tx.QueryRow(ctx, `
		SELECT id, code, due_days, grace_days, status
		FROM payment_terms
		WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	).Scan(&pt.ID, &pt.Code, &pt.DueDays, &pt.GraceDays, &pt.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("payment term %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("fetch payment term %d: %w", id, err)
	}
	if pt.Status != "ACTIVE" {
		return nil, validationf("payment_term", "payment term %s is not active", pt.Code)
	}
	return pt, nil
}

// requireAccount checks an account exists in scope, is active and postable,
// and belongs to one of the allowed families.
func requireAccount(ctx context.Context, tx pgx.Tx, scope Scope, field string, id int64, allowed ...AccountFamily) error {
	acc := &Account{}
	err := tx.QueryRow(ctx, `
		SELECT id, legal_entity_id, code, name, family, is_postable, is_active
		FROM accounts
		WHERE id = $1 AND tenant_id = $2 AND legal_entity_id = $3`,
		id, scope.TenantID, scope.LegalEntityID,
	).Scan(&acc.ID, &acc.LegalEntityID, &acc.Code, &acc.Name, &acc.Family, &acc.IsPostable, &acc.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return validationf(field, "account %d not found", id)
		}
		return fmt.Errorf("fetch account %d: %w", id, err)
	}
	if !acc.IsActive {
		return validationf(field, "account %s is not active", acc.Code)
	}
	if !acc.IsPostable {
		return validationf(field, "account %s is not postable", acc.Code)
	}
	for _, f := range allowed {
		if acc.Family == f {
			return nil
		}
	}
	return validationf(field, "account %s has family %s, expected one of %v", acc.Code, acc.Family, allowed)
}

// requireLegalEntity verifies the scope's legal entity exists for the tenant.
func requireLegalEntity(ctx context.Context, tx pgx.Tx, scope Scope) error {
	var exists bool
	if err := tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM legal_entities WHERE id = $1 AND tenant_id = $2)",
		scope.LegalEntityID, scope.TenantID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check legal entity %d: %w", scope.LegalEntityID, err)
	}
	if !exists {
		return fmt.Errorf("legal entity %d: %w", scope.LegalEntityID, ErrNotFound)
	}
	return nil
}

// requireCurrency verifies a currency code is known.
func requireCurrency(ctx context.Context, tx pgx.Tx, code string) error {
	var exists bool
	if err := tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM currencies WHERE code = $1)", code,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check currency %s: %w", code, err)
	}
	if !exists {
		return validationf("currency", "unknown currency %q", code)
	}
	return nil
}
