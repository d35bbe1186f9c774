// Package graph holds the bipartite constraint/variable state observed at a
// branching decision. This package has no dependencies on sampling/; it stores
// pure data and the few shape transforms the scoring models need.
package graph

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Observation is the bipartite graph state at one decision point.
// Rows of RowFeatures are constraints, rows of ColumnFeatures are variables, and
// edge k connects constraint EdgeIndex[0][k] to variable EdgeIndex[1][k] with
// coefficient EdgeValues[k].
//
// Observations are treated as read-only once built: transforms return copies.
type Observation struct {
	RowFeatures    *mat.Dense
	EdgeIndex      [2][]int
	EdgeValues     []float64
	ColumnFeatures *mat.Dense
}

// NumConstraints returns the number of constraint nodes.
func (o *Observation) NumConstraints() int {
	if o.RowFeatures == nil {
		return 0
	}
	r, _ := o.RowFeatures.Dims()
	return r
}

// NumVariables returns the number of variable nodes, i.e. the width of the
// per-action score vector.
func (o *Observation) NumVariables() int {
	if o.ColumnFeatures == nil {
		return 0
	}
	r, _ := o.ColumnFeatures.Dims()
	return r
}

// NumEdges returns the number of constraint/variable edges.
func (o *Observation) NumEdges() int {
	return len(o.EdgeValues)
}

// Validate checks that the edge arrays agree in length and reference existing nodes.
func (o *Observation) Validate() error {
	if o.ColumnFeatures == nil {
		return fmt.Errorf("observation has no variable features")
	}
	if len(o.EdgeIndex[0]) != len(o.EdgeValues) || len(o.EdgeIndex[1]) != len(o.EdgeValues) {
		return fmt.Errorf("edge index lengths (%d, %d) do not match %d edge values",
			len(o.EdgeIndex[0]), len(o.EdgeIndex[1]), len(o.EdgeValues))
	}
	nCons, nVars := o.NumConstraints(), o.NumVariables()
	for k := range o.EdgeValues {
		if c := o.EdgeIndex[0][k]; c < 0 || c >= nCons {
			return fmt.Errorf("edge %d: constraint index %d out of range [0, %d)", k, c, nCons)
		}
		if v := o.EdgeIndex[1][k]; v < 0 || v >= nVars {
			return fmt.Errorf("edge %d: variable index %d out of range [0, %d)", k, v, nVars)
		}
	}
	return nil
}

// WithoutColumns returns a copy of the observation whose variable-feature matrix
// has the given column indices removed. Row features and edges are shared with
// the receiver.
func (o *Observation) WithoutColumns(cols ...int) (*Observation, error) {
	if o.ColumnFeatures == nil {
		return nil, fmt.Errorf("observation has no variable features")
	}
	reduced, err := DropColumns(o.ColumnFeatures, cols...)
	if err != nil {
		return nil, err
	}
	return &Observation{
		RowFeatures:    o.RowFeatures,
		EdgeIndex:      o.EdgeIndex,
		EdgeValues:     o.EdgeValues,
		ColumnFeatures: reduced,
	}, nil
}

// DropColumns returns a new matrix equal to m without the listed columns.
// Duplicate indices are ignored; every index must exist in m.
func DropColumns(m *mat.Dense, cols ...int) (*mat.Dense, error) {
	r, c := m.Dims()
	drop := make(map[int]bool, len(cols))
	for _, col := range cols {
		if col < 0 || col >= c {
			return nil, fmt.Errorf("column %d out of range for %dx%d matrix", col, r, c)
		}
		drop[col] = true
	}
	keep := make([]int, 0, c-len(drop))
	for j := 0; j < c; j++ {
		if !drop[j] {
			keep = append(keep, j)
		}
	}
	sort.Ints(keep)
	if len(keep) == 0 {
		return nil, fmt.Errorf("dropping %d columns leaves an empty %dx%d matrix", len(drop), r, c)
	}

	out := mat.NewDense(r, len(keep), nil)
	for i := 0; i < r; i++ {
		for dst, src := range keep {
			out.Set(i, dst, m.At(i, src))
		}
	}
	return out, nil
}

// FromRows builds a dense matrix from row slices. All rows must share one length.
// Returns nil (and no error) for zero rows, so that empty constraint sets survive
// a round trip.
func FromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	width := len(rows[0])
	if width == 0 {
		return nil, fmt.Errorf("rows have zero width")
	}
	data := make([]float64, 0, len(rows)*width)
	for i, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("row %d has %d values, want %d", i, len(row), width)
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), width, data), nil
}

// Rows copies a dense matrix back into row slices. A nil matrix yields nil.
func Rows(m *mat.Dense) [][]float64 {
	if m == nil {
		return nil
	}
	r, _ := m.Dims()
	out := make([][]float64, r)
	for i := 0; i < r; i++ {
		out[i] = append([]float64(nil), m.RawRowView(i)...)
	}
	return out
}
