package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apolo/pkg/exception"
)

func TestDeriveRiskState(t *testing.T) {
	cases := []struct {
		drawdown float64
		want     RiskState
	}{
		{-0.01, RiskNormal},
		{0, RiskNormal},
		{0.04, RiskNormal},
		{0.0401, RiskDefensive},
		{0.08, RiskDefensive},
		{0.0801, RiskHalt},
		{0.09, RiskHalt},
		{1, RiskHalt},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.want, DeriveRiskState(tc.drawdown), "drawdown %v", tc.drawdown)
	}
}

func TestNoSnapshotAboveHaltThresholdUnlessHalted(t *testing.T) {
	for dd := 0.0; dd <= 0.2; dd += 0.0025 {
		for _, rs := range []RiskState{RiskNormal, RiskDefensive, RiskHalt} {
			s := AccountState{DrawdownPct: dd, RiskState: rs}
			err := s.Validate()
			if dd > HaltDrawdown && rs != RiskHalt {
				require.ErrorIsf(t, err, exception.ErrRiskInconsistentState, "dd=%v rs=%s", dd, rs)
			}
			if err == nil {
				require.Equal(t, DeriveRiskState(dd), rs)
			}
		}
	}
}

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	repo := NewMemoryRepository()

	_, ok, err := repo.Latest(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	first := Initial(100000, base)
	second := Initial(101000, base.Add(time.Minute))
	require.NoError(t, repo.Append(ctx, second))
	require.NoError(t, repo.Append(ctx, first))

	latest, ok, err := repo.Latest(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 101000.0, latest.Equity)
	assert.Len(t, repo.History(), 2)

	bad := Initial(90000, base.Add(2*time.Minute))
	bad.DrawdownPct = 0.1
	require.ErrorIs(t, repo.Append(ctx, bad), exception.ErrRiskInconsistentState)
	assert.Len(t, repo.History(), 2)
}

func TestSnapshotFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "account.json")
	s := Initial(100000, time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC))
	s.Equity = 95000
	s.DrawdownPct = 0.05
	s.RiskState = RiskDefensive
	s.ConsecutiveLosses = 2

	require.NoError(t, WriteSnapshot(path, s))
	got, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, s.Equity, got.Equity)
	assert.Equal(t, RiskDefensive, got.RiskState)
	assert.Equal(t, 2, got.ConsecutiveLosses)
	assert.True(t, s.Timestamp.Equal(got.Timestamp))
}
