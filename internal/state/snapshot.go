package state

import (
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
)

// Snapshot is the JSON layout of an exported account state.
type Snapshot struct {
	Timestamp         time.Time `json:"timestamp"`
	Equity            float64   `json:"equity"`
	Balance           float64   `json:"balance"`
	RiskState         RiskState `json:"riskState"`
	DrawdownPct       float64   `json:"drawdownPct"`
	HighWaterMark     float64   `json:"highWaterMark"`
	DailyTradesCount  int       `json:"dailyTradesCount"`
	DailyPnL          float64   `json:"dailyPnl"`
	WeeklyPnL         float64   `json:"weeklyPnl"`
	ConsecutiveLosses int       `json:"consecutiveLosses"`
}

// SnapshotOf builds the export layout of s.
func SnapshotOf(s AccountState) Snapshot {
	return Snapshot(s)
}

// AccountState converts the export layout back.
func (s Snapshot) AccountState() AccountState {
	return AccountState(s)
}

// WriteSnapshot writes the account state to disk as JSON.
func WriteSnapshot(path string, s AccountState) error {
	data, err := sonic.ConfigStd.MarshalIndent(SnapshotOf(s), "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "mkdir snapshot dir")
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSnapshot loads and validates an account state from disk.
func ReadSnapshot(path string) (AccountState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AccountState{}, err
	}
	var snap Snapshot
	if err := sonic.Unmarshal(data, &snap); err != nil {
		return AccountState{}, errors.Wrap(err, "unmarshal snapshot")
	}
	s := snap.AccountState()
	if err := s.Validate(); err != nil {
		return AccountState{}, err
	}
	return s, nil
}
