// Package store persists sampled decisions: the on-disk sample record, the
// staging directory workers write into, the instance catalog the dispatcher
// draws from, and the run manifest.
package store

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/bnb-imitation/samplegen/sampling/graph"
)

// encMode produces deterministic CBOR so that identical records are byte-identical on disk.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("store: building CBOR encoder: %v", err))
	}
}

// DenseMatrix is the serialized form of a row-major feature matrix.
type DenseMatrix struct {
	Rows int       `cbor:"rows"`
	Cols int       `cbor:"cols"`
	Data []float64 `cbor:"data"`
}

// GraphRecord is the serialized bipartite observation.
type GraphRecord struct {
	RowFeatures    DenseMatrix `cbor:"row_features"`
	EdgeIndex      [2][]int    `cbor:"edge_index"`
	EdgeValues     []float64   `cbor:"edge_values"`
	ColumnFeatures DenseMatrix `cbor:"column_features"`
}

// Record is one expert-labelled decision.
type Record struct {
	Episode     int64       `cbor:"episode"`
	Instance    string      `cbor:"instance"`
	Seed        uint32      `cbor:"seed"`
	Observation GraphRecord `cbor:"observation"`
	Action      int         `cbor:"chosen_action"`
	ActionSet   []int       `cbor:"action_set"`
	Scores      []float64   `cbor:"scores"`
}

// NewGraphRecord captures the raw observation (all variable-feature columns kept).
func NewGraphRecord(obs *graph.Observation) GraphRecord {
	return GraphRecord{
		RowFeatures:    denseRecord(graph.Rows(obs.RowFeatures)),
		EdgeIndex:      [2][]int{append([]int(nil), obs.EdgeIndex[0]...), append([]int(nil), obs.EdgeIndex[1]...)},
		EdgeValues:     append([]float64(nil), obs.EdgeValues...),
		ColumnFeatures: denseRecord(graph.Rows(obs.ColumnFeatures)),
	}
}

func denseRecord(rows [][]float64) DenseMatrix {
	if len(rows) == 0 {
		return DenseMatrix{}
	}
	d := DenseMatrix{Rows: len(rows), Cols: len(rows[0]), Data: make([]float64, 0, len(rows)*len(rows[0]))}
	for _, row := range rows {
		d.Data = append(d.Data, row...)
	}
	return d
}

// Observation rebuilds the in-memory observation.
func (g GraphRecord) Observation() (*graph.Observation, error) {
	rowFeatures, err := g.RowFeatures.rows()
	if err != nil {
		return nil, fmt.Errorf("row features: %w", err)
	}
	colFeatures, err := g.ColumnFeatures.rows()
	if err != nil {
		return nil, fmt.Errorf("column features: %w", err)
	}
	rf, err := graph.FromRows(rowFeatures)
	if err != nil {
		return nil, fmt.Errorf("row features: %w", err)
	}
	cf, err := graph.FromRows(colFeatures)
	if err != nil {
		return nil, fmt.Errorf("column features: %w", err)
	}
	return &graph.Observation{
		RowFeatures:    rf,
		EdgeIndex:      g.EdgeIndex,
		EdgeValues:     g.EdgeValues,
		ColumnFeatures: cf,
	}, nil
}

func (d DenseMatrix) rows() ([][]float64, error) {
	if d.Rows*d.Cols != len(d.Data) {
		return nil, fmt.Errorf("%dx%d matrix carries %d values", d.Rows, d.Cols, len(d.Data))
	}
	out := make([][]float64, d.Rows)
	for i := range out {
		out[i] = d.Data[i*d.Cols : (i+1)*d.Cols]
	}
	return out, nil
}

// Encode writes a gzip-compressed CBOR record.
func Encode(w io.Writer, rec *Record) error {
	zw := gzip.NewWriter(w)
	if err := encMode.NewEncoder(zw).Encode(rec); err != nil {
		_ = zw.Close()
		return fmt.Errorf("encoding sample record: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compressing sample record: %w", err)
	}
	return nil
}

// Decode reads a record written by Encode.
func Decode(r io.Reader) (*Record, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening compressed sample: %w", err)
	}
	defer func() { _ = zr.Close() }()
	var rec Record
	if err := cbor.NewDecoder(zr).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decoding sample record: %w", err)
	}
	return &rec, nil
}

// WriteRecord encodes rec into a new file at path.
func WriteRecord(path string, rec *Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating sample file: %w", err)
	}
	if err := Encode(f, rec); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing sample file %s: %w", path, err)
	}
	return nil
}

// ReadRecord decodes the sample file at path.
func ReadRecord(path string) (*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening sample file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Decode(f)
}
