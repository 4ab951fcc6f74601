package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"tradewind/internal/domain"
)

// Compile-time interface check.
var _ BarStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore using Parquet files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// KlineRecord is the on-disk Parquet schema for kline data.
type KlineRecord struct {
	Symbol      string  `parquet:"symbol"`
	OpenTime    int64   `parquet:"open_time,timestamp(millisecond)"` // Unix ms
	Open        float64 `parquet:"open"`
	High        float64 `parquet:"high"`
	Low         float64 `parquet:"low"`
	Close       float64 `parquet:"close"`
	Volume      float64 `parquet:"volume"`
	QuoteVolume float64 `parquet:"quote_volume"`
	TradeCount  int64   `parquet:"trade_count"`
}

// WriteBars writes kline data to Parquet files organized by symbol, interval
// and year. Each combination produces a separate file at:
//
//	<DataDir>/<SYMBOL>/<interval>/<YYYY>.parquet
//
// Existing records are merged in, deduplicated by open time with incoming
// records winning.
func (s *ParquetStore) WriteBars(_ context.Context, bars []domain.Bar, interval string) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]KlineRecord)
	for _, b := range bars {
		k := key{symbol: b.Symbol, year: b.OpenTime.UTC().Year()}
		groups[k] = append(groups[k], KlineRecord{
			Symbol:      b.Symbol,
			OpenTime:    b.OpenTime.UnixMilli(),
			Open:        b.Open,
			High:        b.High,
			Low:         b.Low,
			Close:       b.Close,
			Volume:      b.Volume,
			QuoteVolume: b.QuoteVolume,
			TradeCount:  b.TradeCount,
		})
	}

	for k, records := range groups {
		path := s.barPath(k.symbol, interval, k.year)

		existing, _ := readParquetFile[KlineRecord](path)
		merged := mergeKlineRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing klines for %s/%s/%d: %w", k.symbol, interval, k.year, err)
		}
	}
	return nil
}

// ReadBars reads kline data for the symbol, interval and time range.
func (s *ParquetStore) ReadBars(_ context.Context, symbol, interval string, start, end time.Time) ([]domain.Bar, error) {
	var bars []domain.Bar
	for year := start.UTC().Year(); year <= end.UTC().Year(); year++ {
		path := s.barPath(symbol, interval, year)

		records, err := readParquetFile[KlineRecord](path)
		if err != nil {
			// No file for this year.
			continue
		}

		for _, r := range records {
			ts := time.UnixMilli(r.OpenTime).UTC()
			if ts.Before(start) || ts.After(end) {
				continue
			}
			bars = append(bars, domain.Bar{
				Symbol:      r.Symbol,
				OpenTime:    ts,
				Open:        r.Open,
				High:        r.High,
				Low:         r.Low,
				Close:       r.Close,
				Volume:      r.Volume,
				QuoteVolume: r.QuoteVolume,
				TradeCount:  r.TradeCount,
			})
		}
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].OpenTime.Before(bars[j].OpenTime) })
	return bars, nil
}

// ListSymbols lists all symbols that have stored kline data.
func (s *ParquetStore) ListSymbols(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// barPath returns the filesystem path for a kline Parquet file.
// Layout: <dataDir>/<SYMBOL>/<interval>/<YYYY>.parquet
func (s *ParquetStore) barPath(symbol, interval string, year int) string {
	return filepath.Join(s.DataDir, strings.ToUpper(symbol), interval, fmt.Sprintf("%d.parquet", year))
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	return parquet.ReadFile[T](path)
}

// mergeKlineRecords deduplicates records by (symbol, open time), preferring
// incoming records over existing ones. Results are sorted by open time.
func mergeKlineRecords(existing, incoming []KlineRecord) []KlineRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]KlineRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.OpenTime}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.OpenTime}] = r
	}

	merged := make([]KlineRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].OpenTime < merged[j].OpenTime
	})
	return merged
}
