package types

import "time"

// DefaultCheckpoint is used when the source has no checkpoint column or the
// cell is empty.
const DefaultCheckpoint = "CP1"

// Level is the congestion classification of a utilization ratio.
type Level string

const (
	LevelGreen  Level = "GREEN"
	LevelYellow Level = "YELLOW"
	LevelRed    Level = "RED"
)

// Levels lists every level in ascending severity.
var Levels = []Level{LevelGreen, LevelYellow, LevelRed}

// Icon returns the dashboard icon for the level.
func (l Level) Icon() string {
	switch l {
	case LevelGreen:
		return "🟢"
	case LevelYellow:
		return "🟡"
	default:
		return "🔴"
	}
}

// Event is one checkpoint passage as read from the source. RawTime is kept
// unparsed; the aggregator decides which rows carry a usable timestamp.
type Event struct {
	RawTime      string
	CheckpointID string
}

// HistoryRecord is the derived load state of one checkpoint for one minute.
// JSON field names follow the dashboard's established contract.
type HistoryRecord struct {
	Minute       time.Time `json:"ts_minute"`
	CheckpointID string    `json:"checkpoint_id"`
	Count        int       `json:"n_t"`
	SmoothedRate float64   `json:"lambda_hat"`
	ServiceRate  float64   `json:"mu"`
	Utilization  float64   `json:"rho"`
	Level        Level     `json:"level"`
}

// Passage CSV columns written by the generator. Only the timestamp and
// checkpoint columns are consumed by the server.
const (
	ColumnCheckDate   = "CheckDate"
	ColumnCheckpoint  = "checkpoint_id"
	ColumnDestination = "DestinationAirport"
)

// PassageColumns is the header row of a passage CSV file.
var PassageColumns = []string{
	"ID", "Name", "PNR", "OriginAirport", ColumnDestination, "IATA",
	"FlightNumber", "FlightDate", ColumnCheckDate, "IsSuccess", "ErrorReason", "Type",
	ColumnCheckpoint,
}
