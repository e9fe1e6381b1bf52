package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLinkService() *LinkService {
	return &LinkService{amounts: DefaultAmountPolicy()}
}

func TestMaterialize_NoEvents(t *testing.T) {
	s := newTestLinkService()
	link := &Link{ID: 1, AmountTxn: d("100"), AmountBase: d("3500")}

	require.NoError(t, s.materialize(link, nil))
	assert.True(t, link.EffectiveTxn.Equal(d("100")))
	assert.True(t, link.EffectiveBase.Equal(d("3500")))
	assert.False(t, link.IsUnlinked)
}

func TestMaterialize_AdjustThenUnlink(t *testing.T) {
	s := newTestLinkService()
	link := &Link{ID: 1, AmountTxn: d("100"), AmountBase: d("3500")}

	// 100/3500 adjusted to 150/5250, then unlinked.
	events := []LinkEvent{
		{Action: LinkActionAdjust, DeltaTxn: d("50"), DeltaBase: d("1750")},
		{Action: LinkActionUnlink, DeltaTxn: d("-150"), DeltaBase: d("-5250")},
	}

	require.NoError(t, s.materialize(link, events))
	assert.True(t, link.EffectiveTxn.IsZero(), "unlinked link is effectively zero, got %s", link.EffectiveTxn)
	assert.True(t, link.EffectiveBase.IsZero())
	assert.True(t, link.IsUnlinked)
	assert.Len(t, link.Events, 2)
}

func TestMaterialize_AdjustDown(t *testing.T) {
	s := newTestLinkService()
	link := &Link{ID: 1, AmountTxn: d("100"), AmountBase: d("3500")}

	events := []LinkEvent{
		{Action: LinkActionAdjust, DeltaTxn: d("-40"), DeltaBase: d("-1400")},
	}

	require.NoError(t, s.materialize(link, events))
	assert.True(t, link.EffectiveTxn.Equal(d("60")))
	assert.True(t, link.EffectiveBase.Equal(d("2100")))
	assert.False(t, link.IsUnlinked)
}

func TestMaterialize_NegativeEffectiveIsIntegrityError(t *testing.T) {
	s := newTestLinkService()
	link := &Link{ID: 7, AmountTxn: d("100"), AmountBase: d("3500")}

	events := []LinkEvent{
		{Action: LinkActionAdjust, DeltaTxn: d("-120"), DeltaBase: d("-4000")},
	}

	err := s.materialize(link, events)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestCheckCap(t *testing.T) {
	s := newTestLinkService()
	doc := &CariDocument{ID: 9, AmountTxn: d("1000"), AmountBase: d("35000")}
	links := []Link{
		{ID: 1, EffectiveTxn: d("600"), EffectiveBase: d("21000")},
		{ID: 2, EffectiveTxn: d("300"), EffectiveBase: d("10500"), IsUnlinked: true},
	}

	// Unlinked links do not consume capacity: 600 + 400 fits.
	assert.NoError(t, s.checkCap(doc, links, d("400"), d("14000")))

	// 600 + 500 exceeds the document amount.
	err := s.checkCap(doc, links, d("500"), d("17500"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAmountCapExceeded)

	var ce *CapExceededError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, int64(9), ce.DocumentID)
}

func TestCheckCapExcluding(t *testing.T) {
	s := newTestLinkService()
	doc := &CariDocument{ID: 9, AmountTxn: d("1000"), AmountBase: d("35000")}
	links := []Link{
		{ID: 1, EffectiveTxn: d("600"), EffectiveBase: d("21000")},
		{ID: 2, EffectiveTxn: d("400"), EffectiveBase: d("14000")},
	}

	// Retargeting link 2 from 400 to 350 fits; to 450 does not.
	assert.NoError(t, s.checkCapExcluding(doc, links, 2, d("350"), d("12250")))
	assert.ErrorIs(t, s.checkCapExcluding(doc, links, 2, d("450"), d("15750")), ErrAmountCapExceeded)
}
