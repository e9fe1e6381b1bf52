package core_test

import (
	"context"
	"errors"
	"testing"

	"contract-ledger/internal/core"
)

func setupRecognitionContract(t *testing.T, contracts *core.ContractService) *core.Contract {
	t.Helper()
	ctx := context.Background()
	scope := testScope()

	contract, err := contracts.Create(ctx, scope, core.ContractInput{
		CounterpartyID: 1,
		ContractNumber: "C-2026-040",
		Type:           core.ContractTypeCustomer,
		Currency:       "USD",
		StartDate:      "2026-01-01",
		Lines: []core.ContractLineInput{
			{
				Description:       "Annual subscription",
				AmountTxn:         dec(t, "1200"),
				AmountBase:        dec(t, "42000"),
				RecognitionMethod: core.RecognitionStraightLine,
				RecognitionStart:  strP("2026-01-01"),
				RecognitionEnd:    strP("2026-12-31"),
				DeferredAccountID: int64Ptr(1),
				RevenueAccountID:  int64Ptr(2),
				Status:            core.LineActive,
			},
			{
				Description:       "Go-live milestone",
				AmountTxn:         dec(t, "300"),
				AmountBase:        dec(t, "10500"),
				RecognitionMethod: core.RecognitionMilestone,
				RecognitionStart:  strP("2026-06-01"),
				DeferredAccountID: int64Ptr(1),
				RevenueAccountID:  int64Ptr(2),
				Status:            core.LineActive,
			},
		},
	})
	if err != nil {
		t.Fatalf("Failed to create contract: %v", err)
	}
	if _, err := contracts.Transition(ctx, scope, contract.ID, core.ActionActivate); err != nil {
		t.Fatalf("Failed to activate: %v", err)
	}
	return contract
}

func strP(s string) *string { return &s }

func TestRecognition_TriggerByContractLine(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	contracts, _, _, _ := newServices(pool)
	amounts := core.DefaultAmountPolicy()
	audit := core.NewAuditRecorder()
	scheduler := core.NewStraightLineScheduler(pool, amounts)
	revrec := core.NewRevRecService(pool, audit, scheduler)

	ctx := context.Background()
	scope := testScope()
	contract := setupRecognitionContract(t, contracts)

	result, err := revrec.Trigger(ctx, scope, core.TriggerRecognitionInput{
		ContractID:   contract.ID,
		FiscalPeriod: "2026-01",
		Mode:         core.ModeByContractLine,
	})
	if err != nil {
		t.Fatalf("Failed to trigger recognition: %v", err)
	}
	if result.SchedulesGenerated != 1 {
		t.Fatalf("Expected 1 schedule, got %d", result.SchedulesGenerated)
	}
	// 12 monthly periods for the subscription + 1 for the milestone.
	if result.LinesGenerated != 13 {
		t.Fatalf("Expected 13 schedule lines, got %d", result.LinesGenerated)
	}
	if result.LinesSkipped != 0 {
		t.Fatalf("Expected no skipped lines, got %d", result.LinesSkipped)
	}

	// Schedule lines must sum to the line amounts despite monthly rounding.
	var totalBase string
	if err := pool.QueryRow(ctx,
		"SELECT COALESCE(SUM(amount_base), 0)::text FROM recognition_schedule_lines",
	).Scan(&totalBase); err != nil {
		t.Fatalf("Failed to sum schedule lines: %v", err)
	}
	if !dec(t, totalBase).Equal(dec(t, "52500")) {
		t.Fatalf("Expected schedule to sum to 52500, got %s", totalBase)
	}

	// A second trigger is a replay, not a second schedule.
	replay, err := revrec.Trigger(ctx, scope, core.TriggerRecognitionInput{
		ContractID:   contract.ID,
		FiscalPeriod: "2026-01",
		Mode:         core.ModeByContractLine,
	})
	if err != nil {
		t.Fatalf("Replay trigger failed: %v", err)
	}
	if !replay.IdempotentReplay || replay.SchedulesGenerated != 0 {
		t.Fatalf("Expected replay with no new schedules, got %+v", replay)
	}
}

func TestRecognition_ByLinkedDocumentRequiresActiveLink(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	contracts, links, _, _ := newServices(pool)
	amounts := core.DefaultAmountPolicy()
	audit := core.NewAuditRecorder()
	scheduler := core.NewStraightLineScheduler(pool, amounts)
	revrec := core.NewRevRecService(pool, audit, scheduler)

	ctx := context.Background()
	scope := testScope()
	contract := setupRecognitionContract(t, contracts)
	docID := insertPostedDocument(t, pool, "INV-040", "1000", "35000", "1000", "35000", "35")

	// No link yet: rejected.
	var ve *core.ValidationError
	_, err := revrec.Trigger(ctx, scope, core.TriggerRecognitionInput{
		ContractID:       contract.ID,
		FiscalPeriod:     "2026-02",
		Mode:             core.ModeByLinkedDocument,
		SourceDocumentID: &docID,
	})
	if !errors.As(err, &ve) {
		t.Fatalf("Expected ValidationError without link, got %v", err)
	}

	link, err := links.Create(ctx, scope, core.CreateLinkInput{
		ContractID: contract.ID,
		DocumentID: docID,
		LinkType:   core.LinkTypeBilling,
		AmountTxn:  dec(t, "500"),
		AmountBase: dec(t, "17500"),
	})
	if err != nil {
		t.Fatalf("Failed to create link: %v", err)
	}

	if _, err := revrec.Trigger(ctx, scope, core.TriggerRecognitionInput{
		ContractID:       contract.ID,
		FiscalPeriod:     "2026-02",
		Mode:             core.ModeByLinkedDocument,
		SourceDocumentID: &docID,
	}); err != nil {
		t.Fatalf("Expected trigger to succeed with active link: %v", err)
	}

	// An unlinked document no longer qualifies as a source.
	if _, err := links.Unlink(ctx, scope, link.ID, "rebooked"); err != nil {
		t.Fatalf("Failed to unlink: %v", err)
	}
	_, err = revrec.Trigger(ctx, scope, core.TriggerRecognitionInput{
		ContractID:       contract.ID,
		FiscalPeriod:     "2026-02",
		Mode:             core.ModeByLinkedDocument,
		SourceDocumentID: &docID,
	})
	if !errors.As(err, &ve) {
		t.Fatalf("Expected ValidationError for unlinked source document, got %v", err)
	}
}

func TestRecognition_ExplicitLineSelection(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	contracts, _, _, _ := newServices(pool)
	scheduler := core.NewStraightLineScheduler(pool, core.DefaultAmountPolicy())
	revrec := core.NewRevRecService(pool, core.NewAuditRecorder(), scheduler)

	ctx := context.Background()
	scope := testScope()
	contract := setupRecognitionContract(t, contracts)

	var ve *core.ValidationError
	_, err := revrec.Trigger(ctx, scope, core.TriggerRecognitionInput{
		ContractID:   contract.ID,
		FiscalPeriod: "January 2026",
		Mode:         core.ModeByContractLine,
	})
	if !errors.As(err, &ve) {
		t.Fatalf("Expected ValidationError for malformed fiscal period, got %v", err)
	}

	_, err = revrec.Trigger(ctx, scope, core.TriggerRecognitionInput{
		ContractID:   contract.ID,
		FiscalPeriod: "2026-01",
		Mode:         core.ModeByContractLine,
		LineIDs:      []int64{999999},
	})
	if !errors.As(err, &ve) {
		t.Fatalf("Expected ValidationError for unknown line id, got %v", err)
	}

	// Only the milestone line: one schedule line, the subscription untouched.
	result, err := revrec.Trigger(ctx, scope, core.TriggerRecognitionInput{
		ContractID:   contract.ID,
		FiscalPeriod: "2026-01",
		Mode:         core.ModeByContractLine,
		LineIDs:      []int64{contract.Lines[1].ID},
	})
	if err != nil {
		t.Fatalf("Failed to trigger recognition: %v", err)
	}
	if result.SchedulesGenerated != 1 || result.LinesGenerated != 1 {
		t.Fatalf("Expected 1 schedule with 1 line, got %+v", result)
	}
}

func TestRecognition_RequiresActiveContract(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	contracts, _, _, _ := newServices(pool)
	scheduler := core.NewStraightLineScheduler(pool, core.DefaultAmountPolicy())
	revrec := core.NewRevRecService(pool, core.NewAuditRecorder(), scheduler)

	contract := createTwoLineContract(t, contracts, "C-2026-041")

	_, err := revrec.Trigger(context.Background(), testScope(), core.TriggerRecognitionInput{
		ContractID:   contract.ID,
		FiscalPeriod: "2026-01",
		Mode:         core.ModeByContractLine,
	})
	if !errors.Is(err, core.ErrInvalidState) {
		t.Fatalf("Expected ErrInvalidState for DRAFT contract, got %v", err)
	}
}
