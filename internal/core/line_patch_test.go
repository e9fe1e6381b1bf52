package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func i64Ptr(v int64) *int64 { return &v }

func TestApplyLinePatch_OverlaysOnlyProvidedFields(t *testing.T) {
	line := ContractLine{
		ID:                7,
		Description:       "Implementation services",
		AmountTxn:         d("600"),
		AmountBase:        d("21000"),
		RecognitionMethod: RecognitionStraightLine,
		DeferredAccountID: i64Ptr(1),
		RevenueAccountID:  i64Ptr(2),
		Status:            LineActive,
	}

	applyLinePatch(&line, LinePatch{
		AmountTxn:  decPtr("750"),
		AmountBase: decPtr("26250"),
	})

	assert.True(t, line.AmountTxn.Equal(d("750")))
	assert.True(t, line.AmountBase.Equal(d("26250")))
	assert.Equal(t, "Implementation services", line.Description)
	assert.Equal(t, RecognitionStraightLine, line.RecognitionMethod)
	assert.Equal(t, LineActive, line.Status)
	assert.Equal(t, int64(1), *line.DeferredAccountID)
}

func TestApplyLinePatch_AllFields(t *testing.T) {
	line := ContractLine{
		Description:       "Support retainer",
		AmountTxn:         d("400"),
		AmountBase:        d("14000"),
		RecognitionMethod: RecognitionStraightLine,
		Status:            LineActive,
	}

	method := RecognitionMilestone
	status := LineInactive
	applyLinePatch(&line, LinePatch{
		Description:       strPtr("Support retainer (renegotiated)"),
		AmountTxn:         decPtr("500"),
		AmountBase:        decPtr("17500"),
		RecognitionMethod: &method,
		RecognitionStart:  strPtr("2026-06-01"),
		RecognitionEnd:    strPtr("2026-12-31"),
		DeferredAccountID: i64Ptr(3),
		RevenueAccountID:  i64Ptr(4),
		Status:            &status,
	})

	assert.Equal(t, "Support retainer (renegotiated)", line.Description)
	assert.True(t, line.AmountTxn.Equal(d("500")))
	assert.True(t, line.AmountBase.Equal(d("17500")))
	assert.Equal(t, RecognitionMilestone, line.RecognitionMethod)
	assert.Equal(t, "2026-06-01", *line.RecognitionStart)
	assert.Equal(t, "2026-12-31", *line.RecognitionEnd)
	assert.Equal(t, int64(3), *line.DeferredAccountID)
	assert.Equal(t, int64(4), *line.RevenueAccountID)
	assert.Equal(t, LineInactive, line.Status)
}

func TestApplyLinePatch_EmptyPatchIsNoop(t *testing.T) {
	line := ContractLine{
		Description: "Implementation services",
		AmountTxn:   d("600"),
		AmountBase:  d("21000"),
		Status:      LineActive,
	}
	before := line

	applyLinePatch(&line, LinePatch{})

	assert.Equal(t, before, line)
}
