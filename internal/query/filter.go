// Package query translates raw request parameters into store filters.
package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bluereef/baymonitor/internal/store"
)

// BadRequestError is a validation failure naming the offending parameter.
// The API layer maps it to 400.
type BadRequestError struct {
	Param string
	Msg   string
}

func (e *BadRequestError) Error() string {
	return fmt.Sprintf("invalid parameter %q: %s", e.Param, e.Msg)
}

const (
	// DefaultLimit applies when the limit parameter is absent.
	DefaultLimit = 100
	// MaxLimit is the hard page ceiling; larger values are clamped, not
	// rejected.
	MaxLimit = 1000
)

// recognized is the full allow-list, in the order conditions are emitted.
// Any parameter outside this list fails the whole request.
var recognized = []string{
	"min_temp", "max_temp",
	"min_sal", "max_sal",
	"min_odo", "max_odo",
	"min_time", "max_time",
	"limit", "skip",
}

// columnBySuffix maps the short parameter suffix to the canonical column.
// sal filters the pH column (salinity proxy in the source data).
var columnBySuffix = map[string]string{
	"temp": "temperature",
	"sal":  "ph",
	"odo":  "odo",
	"time": "ts",
}

// Spec is a validated filter: store conditions plus effective pagination.
type Spec struct {
	Conditions []store.Condition
	Limit      int
	Skip       int
}

// Builder turns raw query parameters into Specs. Zero values fall back to
// the package defaults.
type Builder struct {
	DefaultLimit int
	MaxLimit     int
}

// NewBuilder constructs a Builder with explicit pagination bounds.
func NewBuilder(defaultLimit, maxLimit int) Builder {
	return Builder{DefaultLimit: defaultLimit, MaxLimit: maxLimit}
}

func (b Builder) defaults() (int, int) {
	def, max := b.DefaultLimit, b.MaxLimit
	if def <= 0 {
		def = DefaultLimit
	}
	if max <= 0 {
		max = MaxLimit
	}
	return def, max
}

// Build validates params against the allow-list and returns the filter spec.
// It fails closed: one unrecognized name invalidates the whole request before
// any store access.
func (b Builder) Build(params url.Values) (Spec, error) {
	return b.build(params, nil)
}

// BuildIgnoring behaves like Build but treats the named parameters as
// belonging to the caller (e.g. the outlier endpoint's field/method/k) and
// skips them.
func (b Builder) BuildIgnoring(params url.Values, ignore ...string) (Spec, error) {
	skip := make(map[string]bool, len(ignore))
	for _, name := range ignore {
		skip[name] = true
	}
	return b.build(params, skip)
}

func (b Builder) build(params url.Values, ignore map[string]bool) (Spec, error) {
	def, max := b.defaults()
	spec := Spec{Conditions: []store.Condition{}, Limit: def, Skip: 0}

	allowed := make(map[string]bool, len(recognized))
	for _, name := range recognized {
		allowed[name] = true
	}
	for name := range params {
		if ignore[name] {
			continue
		}
		if !allowed[name] {
			return Spec{}, &BadRequestError{Param: name, Msg: "unrecognized parameter"}
		}
	}

	for _, name := range recognized {
		if !params.Has(name) {
			continue
		}
		raw := params.Get(name)

		switch name {
		case "limit":
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				return Spec{}, &BadRequestError{Param: name, Msg: "must be a non-negative integer"}
			}
			if n > max {
				n = max
			}
			spec.Limit = n
		case "skip":
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				return Spec{}, &BadRequestError{Param: name, Msg: "must be a non-negative integer"}
			}
			spec.Skip = n
		default:
			cond, err := rangeCondition(name, raw)
			if err != nil {
				return Spec{}, err
			}
			spec.Conditions = append(spec.Conditions, cond)
		}
	}
	return spec, nil
}

func rangeCondition(name, raw string) (store.Condition, error) {
	op := store.OpGTE
	if strings.HasPrefix(name, "max_") {
		op = store.OpLTE
	}

	suffix := name[len("min_"):]
	col, ok := columnBySuffix[suffix]
	if !ok {
		// Allow-listed name with no column mapping is a configuration bug,
		// not a user error.
		return store.Condition{}, fmt.Errorf("no column mapping for parameter %q", name)
	}

	if col == "ts" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return store.Condition{}, &BadRequestError{Param: name, Msg: "must be an RFC 3339 timestamp"}
		}
		return store.Condition{Field: col, Op: op, Value: t.UTC()}, nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return store.Condition{}, &BadRequestError{Param: name, Msg: "must be a number"}
	}
	return store.Condition{Field: col, Op: op, Value: v}, nil
}
