package filters

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToggleMultiSelect(t *testing.T) {
	s := NewStore(nil)

	st, err := s.Toggle(Town, "Bridgeport")
	require.NoError(t, err)
	st, err = s.Toggle(Town, "Fairfield")
	require.NoError(t, err)
	assert.Equal(t, []string{"Bridgeport", "Fairfield"}, st.Values(Town))

	st, err = s.Toggle(Town, "Bridgeport")
	require.NoError(t, err)
	assert.Equal(t, []string{"Fairfield"}, st.Values(Town))

	st, err = s.Toggle(Town, "Fairfield")
	require.NoError(t, err)
	assert.False(t, st.Has(Town), "empty selection must be key absence")
	assert.True(t, st.IsEmpty())
}

func TestToggleSingleSelect(t *testing.T) {
	s := NewStore(nil)

	_, err := s.Toggle(LeadType, LeadVacant)
	require.NoError(t, err)
	st, err := s.Toggle(LeadType, LeadHighEquity)
	require.NoError(t, err)
	assert.Equal(t, []string{LeadHighEquity}, st.Values(LeadType))

	st, err = s.Toggle(LeadType, LeadHighEquity)
	require.NoError(t, err)
	assert.False(t, st.Has(LeadType))
}

func TestToggleRejectsUnknownAndEmpty(t *testing.T) {
	s := NewStore(nil)
	_, err := s.Toggle(Key("color"), "red")
	require.Error(t, err)
	_, err = s.Toggle(Town, "  ")
	require.Error(t, err)
	assert.True(t, s.State().IsEmpty())
}

func TestSetAndClear(t *testing.T) {
	s := NewStore(nil)

	st, err := s.Set(Zoning, "RS-1", "RS-1", " RM-2 ", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"RS-1", "RM-2"}, st.Values(Zoning))

	_, err = s.Set(TaxBracket, "0-5000", "20000+")
	require.Error(t, err)

	st, err = s.Set(Zoning)
	require.NoError(t, err)
	assert.False(t, st.Has(Zoning))

	st = s.SetText("  12 Main St ")
	assert.Equal(t, "12 Main St", st.First(MailingAddress))
	st = s.SetText("")
	assert.False(t, st.Has(MailingAddress))

	_, _ = s.Toggle(Town, "Stratford")
	_, _ = s.Toggle(OwnerState, "NY")
	st = s.Clear(Town)
	assert.False(t, st.Has(Town))
	assert.True(t, st.Has(OwnerState))

	st = s.ClearAll()
	assert.True(t, st.IsEmpty())
}

func TestSnapshotIsImmutable(t *testing.T) {
	s := NewStore(nil)
	_, _ = s.Toggle(Town, "Bridgeport")
	snap := s.State()

	_, _ = s.Toggle(Town, "Milford")
	assert.Equal(t, []string{"Bridgeport"}, snap.Values(Town))

	vals := snap.Values(Town)
	vals[0] = "mutated"
	assert.Equal(t, "Bridgeport", snap.First(Town))
}

func TestStateEncodeAndKey(t *testing.T) {
	s := NewStore(nil)
	_, _ = s.Toggle(Town, "Bridgeport")
	_, _ = s.Toggle(Town, "Trumbull")
	_, _ = s.Toggle(LeadType, LeadAbsenteeOwners)
	st := s.State()

	q := url.Values{}
	st.Encode(q, Town)
	assert.Equal(t, "", q.Get("town"))
	assert.Equal(t, LeadAbsenteeOwners, q.Get("lead_type"))

	q = url.Values{}
	st.Encode(q)
	assert.Equal(t, "Bridgeport,Trumbull", q.Get("town"))

	assert.Equal(t, "lead_type=absentee-owners&town=Bridgeport,Trumbull", st.Key())

	other := NewStore(nil)
	_, _ = other.Toggle(LeadType, LeadAbsenteeOwners)
	_, _ = other.Toggle(Town, "Bridgeport")
	_, _ = other.Toggle(Town, "Trumbull")
	assert.True(t, st.Equal(other.State()))
}

func TestParseKey(t *testing.T) {
	for _, k := range Keys {
		got, err := ParseKey(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKey("nope")
	assert.Error(t, err)
}
