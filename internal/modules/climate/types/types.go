package types

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrParse       = errors.New("parse error")
	ErrEmptyResult = errors.New("empty result")
	ErrIO          = errors.New("io error")
)

// Pipeline stages, used in StageError and log attributes.
const (
	StageLoad      = "load"
	StageFilter    = "filter"
	StageAggregate = "aggregate"
	StageRender    = "render"
	StageThumbnail = "thumbnail"
	StageArchive   = "archive"
	StagePublish   = "publish"
)

// Observation is one daily record. A nil value means the source had no value
// for that column on that day.
type Observation struct {
	Date   time.Time
	Values map[string]*float64
}

// Value returns the named column's value, or nil when missing.
func (o Observation) Value(column string) *float64 {
	return o.Values[column]
}

type ObservationTable struct {
	Station string
	Columns []string
	Rows    []Observation
}

// HasColumn reports whether the table was loaded with the given column.
func (t ObservationTable) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// MonthlyAggregate is one calendar month of a station.
// Month is the last day of that month at UTC midnight.
type MonthlyAggregate struct {
	Month             time.Time `json:"month"`
	Temperature       *float64  `json:"temperature_c"`
	Precipitation     float64   `json:"precipitation_mm"`
	TemperatureDays   int       `json:"temperature_days"`
	PrecipitationDays int       `json:"precipitation_days"`
}

type MonthlyTable struct {
	Station             string
	TemperatureColumn   string
	PrecipitationColumn string
	Months              []MonthlyAggregate
}

type DiagramRequest struct {
	Table    MonthlyTable
	Title    string
	Filename string
	TempMin  float64
	TempMax  float64
	PrecMin  float64
	PrecMax  float64
}

// StageError reports which station and stage of the pipeline failed.
type StageError struct {
	Station string
	Stage   string
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("station %q: %s: %v", e.Station, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Station is an archived station.
type Station struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RenderRecord is one archived diagram render.
type RenderRecord struct {
	RunID         string    `json:"run_id"`
	Station       string    `json:"station"`
	Year          int       `json:"year"`
	Path          string    `json:"path"`
	ThumbnailPath string    `json:"thumbnail,omitempty"`
	RenderedAt    time.Time `json:"rendered_at"`
}
