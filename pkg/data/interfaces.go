package data

import (
	"errors"
	"time"

	"adaptive-trader/pkg/types"
)

// ErrDataUnavailable is returned when a source cannot supply the requested
// window. Callers skip the tick; no position is mutated.
var ErrDataUnavailable = errors.New("market data unavailable")

// Provider loads historical bars from a source (file path, symbol key).
type Provider interface {
	// LoadData loads the bars, oldest first.
	LoadData(source string) ([]types.OHLCV, error)

	// ValidateData checks the integrity of a loaded series.
	ValidateData(data []types.OHLCV) error

	// GetName identifies the provider in logs.
	GetName() string
}

// Cache stores loaded series under a key with a load timestamp. The TTL
// policy lives in the cache, not in the callers.
type Cache interface {
	// Get returns the cached series and its load time, if present and fresh.
	Get(key string) ([]types.OHLCV, time.Time, bool)

	// Set stores a series under key, timestamped now.
	Set(key string, data []types.OHLCV)

	// Clear drops all entries.
	Clear()

	// Size returns the number of live entries.
	Size() int
}

// CSVColumnMapping defines column positions for a CSV bar file.
type CSVColumnMapping struct {
	TimestampCol int
	OpenCol      int
	HighCol      int
	LowCol       int
	CloseCol     int
	VolumeCol    int
	MinColumns   int
	DateFormat   string
}

// DefaultCSVFormat matches the exchange download scripts' output layout.
var DefaultCSVFormat = CSVColumnMapping{
	TimestampCol: 0,
	OpenCol:      1,
	HighCol:      2,
	LowCol:       3,
	CloseCol:     4,
	VolumeCol:    5,
	MinColumns:   6,
	DateFormat:   "2006-01-02 15:04:05",
}
