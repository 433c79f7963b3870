// Package table provides Frame, a small columnar table whose rows carry a
// stable integer key.
//
// Every projection of a frame (Select, Take, Drop) keeps the row keys of its
// source, so two projections taken from the same positions can always be
// joined back together row-for-row. Frames are immutable: the With* methods
// return a new frame that shares the untouched columns with the receiver.
// Missing numeric values are represented by NaN.
package table

import (
	"fmt"
	"math"
	"slices"
	"sort"
)

// Kind is the storage type of a column.
type Kind int

const (
	Float Kind = iota + 1
	String
)

func (k Kind) String() string {
	switch k {
	case Float:
		return "float64"
	case String:
		return "string"
	default:
		return "unknown"
	}
}

type column struct {
	name    string
	kind    Kind
	floats  []float64
	strings []string
}

// Frame is an immutable set of equally sized columns over keyed rows.
type Frame struct {
	keys  []int
	cols  []*column
	index map[string]int
}

// New returns an empty frame of n rows keyed 0..n-1.
func New(n int) *Frame {
	keys := make([]int, n)
	for i := range keys {
		keys[i] = i
	}
	return &Frame{keys: keys, index: map[string]int{}}
}

// NewWithKeys returns an empty frame whose rows carry the given keys.
func NewWithKeys(keys []int) *Frame {
	return &Frame{keys: slices.Clone(keys), index: map[string]int{}}
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.keys) }

// Keys returns a copy of the row keys in row order.
func (f *Frame) Keys() []int { return slices.Clone(f.keys) }

// Columns returns the column names in insertion order.
func (f *Frame) Columns() []string {
	out := make([]string, len(f.cols))
	for i, c := range f.cols {
		out[i] = c.name
	}
	return out
}

// Has reports whether the frame has a column with the given name.
func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Kind returns the kind of the named column.
func (f *Frame) Kind(name string) (Kind, bool) {
	i, ok := f.index[name]
	if !ok {
		return 0, false
	}
	return f.cols[i].kind, true
}

// NumericColumns returns the names of all float columns in insertion order.
func (f *Frame) NumericColumns() []string {
	var out []string
	for _, c := range f.cols {
		if c.kind == Float {
			out = append(out, c.name)
		}
	}
	return out
}

// Floats returns a copy of a float column.
func (f *Frame) Floats(name string) ([]float64, error) {
	c, err := f.column(name, Float)
	if err != nil {
		return nil, err
	}
	return slices.Clone(c.floats), nil
}

// Strings returns a copy of a string column.
func (f *Frame) Strings(name string) ([]string, error) {
	c, err := f.column(name, String)
	if err != nil {
		return nil, err
	}
	return slices.Clone(c.strings), nil
}

func (f *Frame) column(name string, kind Kind) (*column, error) {
	i, ok := f.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, name)
	}
	c := f.cols[i]
	if c.kind != kind {
		return nil, fmt.Errorf("%w: %s is %s, want %s", ErrColumnKind, name, c.kind, kind)
	}
	return c, nil
}

// WithFloats returns a frame with the named float column added or replaced.
func (f *Frame) WithFloats(name string, vals []float64) (*Frame, error) {
	if len(vals) != f.Len() {
		return nil, fmt.Errorf("%w: %s has %d values, frame has %d rows", ErrLengthMismatch, name, len(vals), f.Len())
	}
	return f.with(&column{name: name, kind: Float, floats: slices.Clone(vals)}), nil
}

// WithStrings returns a frame with the named string column added or replaced.
func (f *Frame) WithStrings(name string, vals []string) (*Frame, error) {
	if len(vals) != f.Len() {
		return nil, fmt.Errorf("%w: %s has %d values, frame has %d rows", ErrLengthMismatch, name, len(vals), f.Len())
	}
	return f.with(&column{name: name, kind: String, strings: slices.Clone(vals)}), nil
}

func (f *Frame) with(c *column) *Frame {
	out := f.shallow()
	if i, ok := out.index[c.name]; ok {
		out.cols[i] = c
		return out
	}
	out.index[c.name] = len(out.cols)
	out.cols = append(out.cols, c)
	return out
}

func (f *Frame) shallow() *Frame {
	out := &Frame{
		keys:  f.keys,
		cols:  slices.Clone(f.cols),
		index: make(map[string]int, len(f.index)+1),
	}
	for k, v := range f.index {
		out.index[k] = v
	}
	return out
}

// Select returns a frame holding only the named columns, in the given order.
func (f *Frame) Select(names ...string) (*Frame, error) {
	out := &Frame{keys: f.keys, index: make(map[string]int, len(names))}
	for _, name := range names {
		i, ok := f.index[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, name)
		}
		if _, dup := out.index[name]; dup {
			continue
		}
		out.index[name] = len(out.cols)
		out.cols = append(out.cols, f.cols[i])
	}
	return out, nil
}

// Drop returns a frame without the named columns. Unknown names are ignored.
func (f *Frame) Drop(names ...string) *Frame {
	skip := make(map[string]bool, len(names))
	for _, n := range names {
		skip[n] = true
	}
	out := &Frame{keys: f.keys, index: map[string]int{}}
	for _, c := range f.cols {
		if skip[c.name] {
			continue
		}
		out.index[c.name] = len(out.cols)
		out.cols = append(out.cols, c)
	}
	return out
}

// Take returns the rows at the given positions, in that order. Row keys travel
// with their rows.
func (f *Frame) Take(positions []int) *Frame {
	out := &Frame{
		keys:  make([]int, len(positions)),
		cols:  make([]*column, len(f.cols)),
		index: make(map[string]int, len(f.index)),
	}
	for i, p := range positions {
		out.keys[i] = f.keys[p]
	}
	for ci, c := range f.cols {
		nc := &column{name: c.name, kind: c.kind}
		switch c.kind {
		case Float:
			nc.floats = make([]float64, len(positions))
			for i, p := range positions {
				nc.floats[i] = c.floats[p]
			}
		case String:
			nc.strings = make([]string, len(positions))
			for i, p := range positions {
				nc.strings[i] = c.strings[p]
			}
		}
		out.cols[ci] = nc
		out.index[c.name] = ci
	}
	return out
}

// Reindex returns the same rows keyed 0..n-1.
func (f *Frame) Reindex() *Frame {
	out := f.shallow()
	out.keys = make([]int, f.Len())
	for i := range out.keys {
		out.keys[i] = i
	}
	return out
}

// CompletePositions returns the positions of rows that have no NaN in any of
// the named float columns.
func (f *Frame) CompletePositions(names ...string) ([]int, error) {
	cols := make([]*column, 0, len(names))
	for _, name := range names {
		c, err := f.column(name, Float)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	out := make([]int, 0, f.Len())
rows:
	for i := range f.keys {
		for _, c := range cols {
			if math.IsNaN(c.floats[i]) {
				continue rows
			}
		}
		out = append(out, i)
	}
	return out, nil
}

// SortedPositions returns row positions stably ordered ascending by the named
// float columns, compared left to right. NaN sorts last.
func (f *Frame) SortedPositions(by ...string) ([]int, error) {
	cols := make([][]float64, 0, len(by))
	for _, name := range by {
		c, err := f.column(name, Float)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c.floats)
	}
	pos := make([]int, f.Len())
	for i := range pos {
		pos[i] = i
	}
	sort.SliceStable(pos, func(a, b int) bool {
		for _, c := range cols {
			if cmp := CompareFloat(c[pos[a]], c[pos[b]]); cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})
	return pos, nil
}

// CompareFloat orders floats ascending with NaN after every number.
func CompareFloat(a, b float64) int {
	an, bn := math.IsNaN(a), math.IsNaN(b)
	switch {
	case an && bn:
		return 0
	case an:
		return 1
	case bn:
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Merge returns f with the named columns of other joined in by row key. Every
// key of f must be present in other.
func (f *Frame) Merge(other *Frame, names ...string) (*Frame, error) {
	if other == nil {
		return nil, fmt.Errorf("%w: nothing to merge from", ErrMisaligned)
	}
	pos := make(map[int]int, other.Len())
	for i, k := range other.keys {
		pos[k] = i
	}
	positions := make([]int, f.Len())
	for i, k := range f.keys {
		p, ok := pos[k]
		if !ok {
			return nil, fmt.Errorf("%w: key %d missing from source", ErrMisaligned, k)
		}
		positions[i] = p
	}
	src, err := other.Select(names...)
	if err != nil {
		return nil, err
	}
	aligned := src.Take(positions)
	out := f
	for _, c := range aligned.cols {
		out = out.with(c)
	}
	return out, nil
}

// Float returns the value at row position i of a float column, or NaN if the
// column is missing or not numeric.
func (f *Frame) Float(name string, i int) float64 {
	c, err := f.column(name, Float)
	if err != nil {
		return math.NaN()
	}
	return c.floats[i]
}

// Text returns the value at row position i of a string column, or "" if the
// column is missing or not a string column.
func (f *Frame) Text(name string, i int) string {
	c, err := f.column(name, String)
	if err != nil {
		return ""
	}
	return c.strings[i]
}
