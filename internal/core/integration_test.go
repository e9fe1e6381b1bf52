package core_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"contract-ledger/internal/core"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database to avoid wiping the live app database.
	// Set TEST_DATABASE_URL in your .env or environment to run integration tests.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set — skipping integration test to protect live database")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	// Clean and seed test DB
	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE recognition_run_lines, recognition_runs, recognition_schedule_lines,
			recognition_schedules, audit_log, contract_amendments, document_sequences,
			contract_billing_batches, contract_link_events, contract_document_links,
			cari_documents, contract_lines, contracts, accounts, counterparties,
			payment_terms, currencies, legal_entities
		RESTART IDENTITY CASCADE;

		INSERT INTO legal_entities (id, tenant_id, code, name, base_currency)
		VALUES (1, 1, 'LE1', 'Test Entity', 'TRY');

		INSERT INTO currencies (code) VALUES ('USD'), ('TRY');

		INSERT INTO payment_terms (id, tenant_id, code, due_days, grace_days, status)
		VALUES (1, 1, 'NET30', 30, 5, 'ACTIVE');

		INSERT INTO counterparties (id, tenant_id, legal_entity_id, code, name, is_customer, is_vendor, status, default_payment_term_id)
		VALUES (1, 1, 1, 'CUST1', 'Customer One', true, false, 'ACTIVE', 1),
		       (2, 1, 1, 'VEND1', 'Vendor One', false, true, 'ACTIVE', NULL);

		INSERT INTO accounts (id, tenant_id, legal_entity_id, code, name, family)
		VALUES (1, 1, 1, '2400', 'Deferred Revenue', 'DEFERRED_REVENUE'),
		       (2, 1, 1, '4000', 'Revenue', 'REVENUE'),
		       (3, 1, 1, '1500', 'Deferred Expense', 'DEFERRED_EXPENSE'),
		       (4, 1, 1, '5000', 'Expense', 'EXPENSE');

		SELECT setval('contracts_id_seq', 100);
		SELECT setval('cari_documents_id_seq', 100);
	`)
	if err != nil {
		t.Fatalf("Failed to seed test database: %v", err)
	}

	return pool
}

func testScope() core.Scope {
	return core.Scope{TenantID: 1, LegalEntityID: 1, ActorID: 1, RequestID: "test"}
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	v, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return v
}

func int64Ptr(v int64) *int64 { return &v }

func decimalPtr(t *testing.T, s string) *decimal.Decimal {
	v := dec(t, s)
	return &v
}

// newServices wires the core services the way cmd/server does.
func newServices(pool *pgxpool.Pool) (*core.ContractService, *core.LinkService, *core.BillingService, *core.RollupService) {
	amounts := core.DefaultAmountPolicy()
	audit := core.NewAuditRecorder()
	contracts := core.NewContractService(pool, audit, amounts)
	links := core.NewLinkService(pool, audit, amounts)
	billing := core.NewBillingService(pool, audit, amounts, links)
	rollups := core.NewRollupService(pool, amounts, links)
	return contracts, links, billing, rollups
}

// createTwoLineContract creates a CUSTOMER contract with 600/21000 and
// 400/14000 lines and returns it in DRAFT.
func createTwoLineContract(t *testing.T, contracts *core.ContractService, number string) *core.Contract {
	t.Helper()
	contract, err := contracts.Create(context.Background(), testScope(), core.ContractInput{
		CounterpartyID: 1,
		ContractNumber: number,
		Type:           core.ContractTypeCustomer,
		Currency:       "USD",
		StartDate:      "2026-01-01",
		Lines: []core.ContractLineInput{
			{
				Description:       "Implementation services",
				AmountTxn:         dec(t, "600"),
				AmountBase:        dec(t, "21000"),
				RecognitionMethod: core.RecognitionStraightLine,
				DeferredAccountID: int64Ptr(1),
				RevenueAccountID:  int64Ptr(2),
				Status:            core.LineActive,
			},
			{
				Description:       "Support retainer",
				AmountTxn:         dec(t, "400"),
				AmountBase:        dec(t, "14000"),
				RecognitionMethod: core.RecognitionStraightLine,
				DeferredAccountID: int64Ptr(1),
				RevenueAccountID:  int64Ptr(2),
				Status:            core.LineActive,
			},
		},
	})
	if err != nil {
		t.Fatalf("Failed to create contract: %v", err)
	}
	return contract
}

// insertPostedDocument inserts a POSTED receivable invoice directly and
// returns its id. fxRate empty means NULL (the link service must derive it).
func insertPostedDocument(t *testing.T, pool *pgxpool.Pool, number, amountTxn, amountBase, openTxn, openBase, fxRate string) int64 {
	t.Helper()
	var fx any
	if fxRate != "" {
		fx = fxRate
	}
	var id int64
	err := pool.QueryRow(context.Background(), `
		INSERT INTO cari_documents (tenant_id, legal_entity_id, counterparty_id, direction, doc_type,
		                            status, document_number, document_date, currency, fx_rate,
		                            amount_txn, amount_base, open_amount_txn, open_amount_base)
		VALUES (1, 1, 1, 'RECEIVABLE', 'INVOICE', 'POSTED', $1, '2026-02-01', 'USD', $2, $3, $4, $5, $6)
		RETURNING id`,
		number, fx, amountTxn, amountBase, openTxn, openBase,
	).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to insert document: %v", err)
	}
	return id
}
