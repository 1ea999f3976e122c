package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable marks connectivity or timeout failures talking to the
// backing store. The API layer maps it to 503; everything else is a plain
// internal error.
var ErrUnavailable = errors.New("record store unavailable")

// Observation is one cleaned water-quality reading. Ts is the unique key;
// upserts replace the whole record on conflict. Nil numeric fields mean the
// source CSV had no usable value for that column.
type Observation struct {
	Ts          time.Time `json:"ts"`
	Temperature *float64  `json:"temperature"`
	PH          *float64  `json:"ph"`
	ODO         *float64  `json:"odo"`
	Salinity    *float64  `json:"salinity"`
	Depth       *float64  `json:"depth"`
	Latitude    *float64  `json:"latitude,omitempty"`
	Longitude   *float64  `json:"longitude,omitempty"`
	Source      string    `json:"source,omitempty"`
}

// Op is a comparison operator in a store filter. Bounds are inclusive.
type Op string

const (
	OpGTE Op = ">="
	OpLTE Op = "<="
)

// Condition compares one canonical field against a bound. Value is float64
// for numeric columns and time.Time for ts. Conditions combine with AND.
type Condition struct {
	Field string
	Op    Op
	Value any
}

// Sort names the ordering column for Find. The zero value sorts by ts
// ascending.
type Sort struct {
	Field string
	Desc  bool
}

// UpsertResult reports how a bulk upsert split between inserts and replaces.
type UpsertResult struct {
	Upserted int `json:"upserted"`
	Modified int `json:"modified"`
}

// RecordStore is the collection of cleaned observations. Implementations:
// Postgres (production) and Memstore (tests, dry runs).
type RecordStore interface {
	Ping(ctx context.Context) error
	Count(ctx context.Context, conds []Condition) (int64, error)
	Find(ctx context.Context, conds []Condition, skip, limit int, sort Sort) ([]Observation, error)
	UpsertMany(ctx context.Context, recs []Observation) (UpsertResult, error)
	Reset(ctx context.Context) error
}

// numericColumns is the canonical numeric schema, in presentation order.
var numericColumns = []string{"temperature", "ph", "odo", "salinity", "depth", "latitude", "longitude"}

// NumericColumns returns the canonical numeric column names.
func NumericColumns() []string {
	out := make([]string, len(numericColumns))
	copy(out, numericColumns)
	return out
}

// NumericValue returns the value of a canonical numeric column, or ok=false
// when the column does not exist in the schema. A nil pointer with ok=true
// means the column exists but the reading is missing.
func (o Observation) NumericValue(col string) (*float64, bool) {
	switch col {
	case "temperature":
		return o.Temperature, true
	case "ph":
		return o.PH, true
	case "odo":
		return o.ODO, true
	case "salinity":
		return o.Salinity, true
	case "depth":
		return o.Depth, true
	case "latitude":
		return o.Latitude, true
	case "longitude":
		return o.Longitude, true
	}
	return nil, false
}
