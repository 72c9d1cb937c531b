package backtest

import (
	"encoding/csv"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/yanun0323/errors"

	"apolo/pkg/exception"
)

// defaultADX keeps trend gated strategies idle when a series carries no ADX column.
const defaultADX = 25

// ReadCSV loads bars from a CSV file. See ParseCSV.
func ReadCSV(path, symbol string) ([]Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	return ParseCSV(f, symbol)
}

// ParseCSV reads bars with a header row. Recognised columns, case-insensitive:
// time|timestamp (RFC3339 or unix seconds), close|price, symbol, ivrank, adx, iv.
// Rows without a time or close are skipped. Bars are returned in ascending time order and
// fall back to symbol when the row has none.
func ParseCSV(r io.Reader, symbol string) ([]Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read csv header")
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	get := func(rec []string, names ...string) string {
		for _, name := range names {
			if i, ok := cols[name]; ok && i < len(rec) {
				if v := strings.TrimSpace(rec[i]); v != "" {
					return v
				}
			}
		}
		return ""
	}

	var bars []Bar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read csv line %d", line)
		}
		ts, closeRaw := get(rec, "time", "timestamp"), get(rec, "close", "price")
		if ts == "" || closeRaw == "" {
			continue
		}
		at, err := parseTime(ts)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		bar := Bar{Time: at, Symbol: symbol, ADX: defaultADX}
		if bar.Close, err = strconv.ParseFloat(closeRaw, 64); err != nil {
			return nil, errors.Wrapf(exception.ErrInvalidArgument, "line %d close: %s", line, closeRaw)
		}
		if v := get(rec, "symbol"); v != "" {
			bar.Symbol = v
		}
		for _, f := range []struct {
			name string
			dst  *float64
		}{
			{"ivrank", &bar.IVRank},
			{"adx", &bar.ADX},
			{"iv", &bar.IV},
		} {
			raw := get(rec, f.name)
			if raw == "" {
				continue
			}
			if *f.dst, err = strconv.ParseFloat(raw, 64); err != nil {
				return nil, errors.Wrapf(exception.ErrInvalidArgument, "line %d %s: %s", line, f.name, raw)
			}
		}
		bars = append(bars, bar)
	}

	slices.SortStableFunc(bars, func(a, b Bar) int { return a.Time.Compare(b.Time) })
	return bars, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, errors.Wrapf(exception.ErrInvalidArgument, "time: %s", s)
}

// LinearConfig describes a synthetic series that rises by Step per bar.
type LinearConfig struct {
	Symbol   string
	Start    time.Time
	End      time.Time
	Interval time.Duration
	Base     float64
	Step     float64
	IVRank   float64
	ADX      float64
	IV       float64
}

// DefaultLinear is one trading session of minute bars starting at 450 and rising a cent
// per minute.
func DefaultLinear(start time.Time) LinearConfig {
	return LinearConfig{
		Symbol:   DefaultSymbol,
		Start:    start,
		End:      start.Add(390 * time.Minute),
		Interval: time.Minute,
		Base:     450,
		Step:     0.01,
		IVRank:   35,
		ADX:      15,
		IV:       0.2,
	}
}

// Linear builds the bars of cfg, both ends included.
func Linear(cfg LinearConfig) ([]Bar, error) {
	if cfg.Interval <= 0 || cfg.End.Before(cfg.Start) || cfg.Base <= 0 {
		return nil, errors.Wrapf(exception.ErrInvalidArgument,
			"linear series start: %s, end: %s, interval: %s, base: %v", cfg.Start, cfg.End, cfg.Interval, cfg.Base)
	}
	n := int(cfg.End.Sub(cfg.Start)/cfg.Interval) + 1
	bars := make([]Bar, 0, n)
	for i := range n {
		bars = append(bars, Bar{
			Time:   cfg.Start.Add(time.Duration(i) * cfg.Interval),
			Symbol: cfg.Symbol,
			Close:  cfg.Base + float64(i)*cfg.Step,
			IVRank: cfg.IVRank,
			ADX:    cfg.ADX,
			IV:     cfg.IV,
		})
	}
	return bars, nil
}
