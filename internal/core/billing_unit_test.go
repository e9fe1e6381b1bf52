package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBillingService() *BillingService {
	return &BillingService{amounts: DefaultAmountPolicy(), draftNamespace: "DRAFT"}
}

func strPtr(s string) *string { return &s }

func TestVerifyFingerprint_MatchReplays(t *testing.T) {
	s := newTestBillingService()
	batch := &BillingBatch{
		IdempotencyKey:  "key-1",
		DocType:         DocTypeInvoice,
		AmountStrategy:  StrategyFull,
		BillingDate:     "2026-03-01",
		SelectedLineIDs: []int64{1, 2},
	}
	input := GenerateBillingInput{
		IdempotencyKey:  "key-1",
		DocType:         DocTypeInvoice,
		AmountStrategy:  StrategyFull,
		BillingDate:     "2026-03-01",
		SelectedLineIDs: []int64{2, 1}, // order is irrelevant, set semantics
	}
	assert.NoError(t, s.verifyFingerprint(batch, input))
}

// A FULL-strategy request typically names no lines at all; the stored batch
// keeps that empty requested set, and an identical retry must replay rather
// than conflict with the resolved lines of the first attempt.
func TestVerifyFingerprint_OmittedLineSetReplays(t *testing.T) {
	s := newTestBillingService()
	batch := &BillingBatch{
		IdempotencyKey: "key-1",
		DocType:        DocTypeInvoice,
		AmountStrategy: StrategyFull,
		BillingDate:    "2026-03-01",
	}
	input := GenerateBillingInput{
		IdempotencyKey: "key-1",
		DocType:        DocTypeInvoice,
		AmountStrategy: StrategyFull,
		BillingDate:    "2026-03-01",
	}
	assert.NoError(t, s.verifyFingerprint(batch, input))

	// The scan side may hand back an empty (non-nil) array for '{}'.
	batch.SelectedLineIDs = []int64{}
	assert.NoError(t, s.verifyFingerprint(batch, input))
}

func TestVerifyFingerprint_DivergenceConflicts(t *testing.T) {
	s := newTestBillingService()
	base := &BillingBatch{
		IdempotencyKey:  "key-1",
		DocType:         DocTypeInvoice,
		AmountStrategy:  StrategyPartial,
		BillingDate:     "2026-03-01",
		AmountTxn:       d("250"),
		SelectedLineIDs: []int64{1},
	}
	match := GenerateBillingInput{
		IdempotencyKey:  "key-1",
		DocType:         DocTypeInvoice,
		AmountStrategy:  StrategyPartial,
		BillingDate:     "2026-03-01",
		AmountTxn:       decPtr("250"),
		SelectedLineIDs: []int64{1},
	}
	require.NoError(t, s.verifyFingerprint(base, match))

	tests := []struct {
		name   string
		mutate func(*GenerateBillingInput)
		field  string
	}{
		{"doc type", func(in *GenerateBillingInput) { in.DocType = DocTypeAdvance }, "doc type"},
		{"strategy", func(in *GenerateBillingInput) { in.AmountStrategy = StrategyMilestone }, "amount strategy"},
		{"billing date", func(in *GenerateBillingInput) { in.BillingDate = "2026-04-01" }, "billing date"},
		{"due date", func(in *GenerateBillingInput) { in.DueDate = strPtr("2026-05-01") }, "due date"},
		{"amount", func(in *GenerateBillingInput) { in.AmountTxn = decPtr("300") }, "amount"},
		{"line set", func(in *GenerateBillingInput) { in.SelectedLineIDs = []int64{1, 2} }, "selected line set"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := match
			tt.mutate(&in)
			err := s.verifyFingerprint(base, in)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrIdempotencyConflict)

			var ice *IdempotencyConflictError
			require.ErrorAs(t, err, &ice)
			assert.Equal(t, tt.field, ice.Field)
		})
	}
}

func TestResolveBillAmount(t *testing.T) {
	s := newTestBillingService()
	selectedTxn, selectedBase := d("1000"), d("35000")

	t.Run("full takes selected total", func(t *testing.T) {
		txn, base, err := s.resolveBillAmount(GenerateBillingInput{AmountStrategy: StrategyFull}, selectedTxn, selectedBase)
		require.NoError(t, err)
		assert.True(t, txn.Equal(d("1000")))
		assert.True(t, base.Equal(d("35000")))
	})

	t.Run("partial prorates base", func(t *testing.T) {
		txn, base, err := s.resolveBillAmount(GenerateBillingInput{
			AmountStrategy: StrategyPartial, AmountTxn: decPtr("250"),
		}, selectedTxn, selectedBase)
		require.NoError(t, err)
		assert.True(t, txn.Equal(d("250")))
		assert.True(t, base.Equal(d("8750")))
	})

	t.Run("amount above selected total fails", func(t *testing.T) {
		_, _, err := s.resolveBillAmount(GenerateBillingInput{
			AmountStrategy: StrategyPartial, AmountTxn: decPtr("1001"),
		}, selectedTxn, selectedBase)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
	})

	t.Run("non-positive amount fails", func(t *testing.T) {
		_, _, err := s.resolveBillAmount(GenerateBillingInput{
			AmountStrategy: StrategyMilestone, AmountTxn: decPtr("0"),
		}, selectedTxn, selectedBase)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
	})
}

func TestResolveDueDate(t *testing.T) {
	term := &PaymentTerm{DueDays: 30, GraceDays: 5}

	t.Run("explicit due date wins over term", func(t *testing.T) {
		due, err := resolveDueDate(GenerateBillingInput{
			DocType: DocTypeInvoice, BillingDate: "2026-03-01", DueDate: strPtr("2026-03-20"),
		}, term)
		require.NoError(t, err)
		require.NotNil(t, due)
		assert.Equal(t, "2026-03-20", *due)
	})

	t.Run("invoice derives from term", func(t *testing.T) {
		due, err := resolveDueDate(GenerateBillingInput{
			DocType: DocTypeInvoice, BillingDate: "2026-03-01",
		}, term)
		require.NoError(t, err)
		require.NotNil(t, due)
		assert.Equal(t, "2026-04-05", *due)
	})

	t.Run("advance without explicit due date has none", func(t *testing.T) {
		due, err := resolveDueDate(GenerateBillingInput{
			DocType: DocTypeAdvance, BillingDate: "2026-03-01",
		}, term)
		require.NoError(t, err)
		assert.Nil(t, due)
	})

	t.Run("due date before billing date fails", func(t *testing.T) {
		_, err := resolveDueDate(GenerateBillingInput{
			DocType: DocTypeInvoice, BillingDate: "2026-03-01", DueDate: strPtr("2026-02-01"),
		}, term)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
	})
}

func TestValidateBillingInput(t *testing.T) {
	valid := GenerateBillingInput{
		DocType:        DocTypeInvoice,
		AmountStrategy: StrategyFull,
		BillingDate:    "2026-03-01",
		IdempotencyKey: "key-1",
	}
	assert.NoError(t, validateBillingInput(valid))

	t.Run("full with explicit amount", func(t *testing.T) {
		in := valid
		in.AmountTxn = decPtr("100")
		assert.Error(t, validateBillingInput(in))
	})
	t.Run("partial without amount", func(t *testing.T) {
		in := valid
		in.AmountStrategy = StrategyPartial
		assert.Error(t, validateBillingInput(in))
	})
	t.Run("missing idempotency key", func(t *testing.T) {
		in := valid
		in.IdempotencyKey = ""
		assert.Error(t, validateBillingInput(in))
	})
	t.Run("bad billing date", func(t *testing.T) {
		in := valid
		in.BillingDate = "03/01/2026"
		assert.Error(t, validateBillingInput(in))
	})
}

func decPtr(s string) *decimal.Decimal {
	v := d(s)
	return &v
}
