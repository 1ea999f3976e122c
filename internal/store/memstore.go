package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memstore is an in-memory RecordStore with the same semantics as the
// Postgres adapter. Used by tests and by the cleaner's dry-run mode.
type Memstore struct {
	mu      sync.RWMutex
	records map[int64]Observation
	down    bool
}

// NewMemstore returns an empty in-memory store.
func NewMemstore() *Memstore {
	return &Memstore{records: make(map[int64]Observation)}
}

// SetUnavailable toggles simulated connectivity failure.
func (m *Memstore) SetUnavailable(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down = down
}

func (m *Memstore) check() error {
	if m.down {
		return ErrUnavailable
	}
	return nil
}

// Ping reports simulated connectivity.
func (m *Memstore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.check()
}

func matches(o Observation, conds []Condition) bool {
	for _, c := range conds {
		if c.Field == "ts" {
			bound, ok := c.Value.(time.Time)
			if !ok {
				return false
			}
			switch c.Op {
			case OpGTE:
				if o.Ts.Before(bound) {
					return false
				}
			case OpLTE:
				if o.Ts.After(bound) {
					return false
				}
			default:
				return false
			}
			continue
		}

		val, ok := o.NumericValue(c.Field)
		if !ok || val == nil {
			return false
		}
		bound, ok := c.Value.(float64)
		if !ok {
			return false
		}
		switch c.Op {
		case OpGTE:
			if *val < bound {
				return false
			}
		case OpLTE:
			if *val > bound {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func (m *Memstore) filtered(conds []Condition) []Observation {
	out := make([]Observation, 0, len(m.records))
	for _, o := range m.records {
		if matches(o, conds) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ts.Before(out[j].Ts) })
	return out
}

// Count returns the filtered population size.
func (m *Memstore) Count(ctx context.Context, conds []Condition) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return 0, err
	}
	return int64(len(m.filtered(conds))), nil
}

// Find returns one page of filtered observations ordered by ts.
func (m *Memstore) Find(ctx context.Context, conds []Condition, skip, limit int, sortSpec Sort) ([]Observation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}

	all := m.filtered(conds)
	if sortSpec.Field != "" && sortSpec.Field != "ts" {
		field := sortSpec.Field
		sort.SliceStable(all, func(i, j int) bool {
			a, _ := all[i].NumericValue(field)
			b, _ := all[j].NumericValue(field)
			if a == nil || b == nil {
				return b == nil && a != nil
			}
			return *a < *b
		})
	}
	if sortSpec.Desc {
		for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
			all[i], all[j] = all[j], all[i]
		}
	}

	if skip < 0 {
		skip = 0
	}
	if skip >= len(all) || limit <= 0 {
		return []Observation{}, nil
	}
	all = all[skip:]
	if limit < len(all) {
		all = all[:limit]
	}
	out := make([]Observation, len(all))
	copy(out, all)
	return out, nil
}

// UpsertMany replaces-or-inserts records keyed by ts.
func (m *Memstore) UpsertMany(ctx context.Context, recs []Observation) (UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result UpsertResult
	if err := m.check(); err != nil {
		return result, err
	}
	for _, o := range recs {
		key := o.Ts.UnixNano()
		if _, exists := m.records[key]; exists {
			result.Modified++
		} else {
			result.Upserted++
		}
		m.records[key] = o
	}
	return result, nil
}

// Reset empties the collection.
func (m *Memstore) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	m.records = make(map[int64]Observation)
	return nil
}
