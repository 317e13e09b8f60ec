package data

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"adaptive-trader/pkg/types"
)

// CSVProvider loads bar series from CSV files.
type CSVProvider struct {
	format CSVColumnMapping
	log    zerolog.Logger
}

func NewCSVProvider(log zerolog.Logger) *CSVProvider {
	return &CSVProvider{
		format: DefaultCSVFormat,
		log:    log.With().Str("component", "csv-provider").Logger(),
	}
}

// NewCSVProviderWithFormat uses a custom column layout.
func NewCSVProviderWithFormat(format CSVColumnMapping, log zerolog.Logger) *CSVProvider {
	p := NewCSVProvider(log)
	p.format = format
	return p
}

func (p *CSVProvider) GetName() string {
	return "CSV Provider"
}

// LoadData reads the file, skipping malformed rows with a warning.
func (p *CSVProvider) LoadData(source string) ([]types.OHLCV, error) {
	file, err := os.Open(source)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrDataUnavailable, source)
		}
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Skip header.
	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	var data []types.OHLCV
	lineNum := 1
	for {
		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("error reading CSV at line %d: %w", lineNum, err)
		}
		lineNum++

		bar, ok := p.parseRecord(record, lineNum)
		if !ok {
			continue
		}
		data = append(data, bar)
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s has no usable rows", ErrDataUnavailable, source)
	}
	return data, nil
}

func (p *CSVProvider) parseRecord(record []string, lineNum int) (types.OHLCV, bool) {
	if len(record) < p.format.MinColumns {
		p.log.Warn().Int("line", lineNum).Int("columns", len(record)).Msg("insufficient columns, skipping")
		return types.OHLCV{}, false
	}

	timestamp, err := time.Parse(p.format.DateFormat, record[p.format.TimestampCol])
	if err != nil {
		p.log.Warn().Int("line", lineNum).Str("value", record[p.format.TimestampCol]).Msg("invalid timestamp, skipping")
		return types.OHLCV{}, false
	}

	fields := [5]float64{}
	cols := [5]int{p.format.OpenCol, p.format.HighCol, p.format.LowCol, p.format.CloseCol, p.format.VolumeCol}
	for i, col := range cols {
		v, err := strconv.ParseFloat(record[col], 64)
		if err != nil {
			p.log.Warn().Int("line", lineNum).Str("value", record[col]).Msg("invalid number, skipping")
			return types.OHLCV{}, false
		}
		fields[i] = v
	}

	bar := types.OHLCV{
		Timestamp: timestamp,
		Open:      fields[0],
		High:      fields[1],
		Low:       fields[2],
		Close:     fields[3],
		Volume:    fields[4],
	}

	if bar.Open <= 0 || bar.High <= 0 || bar.Low <= 0 || bar.Close <= 0 {
		p.log.Warn().Int("line", lineNum).Msg("non-positive price, skipping")
		return types.OHLCV{}, false
	}
	if bar.High < bar.Low || bar.High < bar.Open || bar.High < bar.Close || bar.Low > bar.Open || bar.Low > bar.Close {
		p.log.Warn().Int("line", lineNum).Msg("inconsistent OHLC, skipping")
		return types.OHLCV{}, false
	}

	return bar, true
}

// ValidateData checks prices and the chronological ordering of the series.
func (p *CSVProvider) ValidateData(data []types.OHLCV) error {
	if len(data) == 0 {
		return fmt.Errorf("no data provided")
	}

	for i, bar := range data {
		if bar.Open <= 0 || bar.High <= 0 || bar.Low <= 0 || bar.Close <= 0 {
			return fmt.Errorf("invalid price data at index %d: prices must be positive", i)
		}
		if bar.High < bar.Low {
			return fmt.Errorf("invalid price data at index %d: high %.4f below low %.4f", i, bar.High, bar.Low)
		}
		if i > 0 && !bar.Timestamp.After(data[i-1].Timestamp) {
			return fmt.Errorf("invalid timestamp sequence at index %d: bars must be strictly increasing", i)
		}
	}
	return nil
}
