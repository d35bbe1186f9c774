// Package testutil provides shared test infrastructure for the sample
// generator: synthetic instance sets, output-directory assertions and float
// comparison helpers used across the sampling/ test packages.
package testutil

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"testing"

	"github.com/bnb-imitation/samplegen/sampling/store"
)

var finalSample = regexp.MustCompile(`^sample_(\d+)\.pkl$`)

// WriteInstances creates an empty <name>.mps.gz and a JSON sidecar carrying
// initial_bound for every entry of bounds, and returns the sorted instance paths.
func WriteInstances(t *testing.T, dir string, bounds map[string]float64) []string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("Failed to create instance dir: %v", err)
	}
	for name, bound := range bounds {
		if err := os.WriteFile(filepath.Join(dir, name+".mps.gz"), nil, 0o644); err != nil {
			t.Fatalf("Failed to write instance %s: %v", name, err)
		}
		data, err := json.Marshal(map[string]float64{"initial_bound": bound})
		if err != nil {
			t.Fatalf("Failed to encode sidecar for %s: %v", name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name+".json"), data, 0o644); err != nil {
			t.Fatalf("Failed to write sidecar for %s: %v", name, err)
		}
	}
	paths, err := store.Discover(dir)
	if err != nil {
		t.Fatalf("Failed to discover instances: %v", err)
	}
	return paths
}

// SampleIndices returns the n of every sample_<n>.pkl directly under dir, sorted.
func SampleIndices(t *testing.T, dir string) []int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to list %s: %v", dir, err)
	}
	var out []int
	for _, e := range entries {
		m := finalSample.FindStringSubmatch(e.Name())
		if m == nil || e.IsDir() {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			t.Fatalf("Bad sample name %s: %v", e.Name(), err)
		}
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// AssertContiguousSamples checks that dir holds exactly sample_1.pkl through
// sample_<want>.pkl and that the staging directory is gone.
func AssertContiguousSamples(t *testing.T, dir string, want int) {
	t.Helper()
	got := SampleIndices(t, dir)
	if len(got) != want {
		t.Errorf("%s: got %d sample files, want %d", dir, len(got), want)
	}
	for i, n := range got {
		if n != i+1 {
			t.Errorf("%s: sample numbering has a gap: position %d holds sample_%d.pkl", dir, i+1, n)
			break
		}
	}
	if _, err := os.Stat(filepath.Join(dir, store.StagingDirName)); !os.IsNotExist(err) {
		t.Errorf("%s: staging directory still present (stat err=%v)", dir, err)
	}
}

// ReadSamples decodes sample_1.pkl..sample_<n>.pkl in numbering order.
func ReadSamples(t *testing.T, dir string, n int) []*store.Record {
	t.Helper()
	out := make([]*store.Record, 0, n)
	for i := 1; i <= n; i++ {
		rec, err := store.ReadRecord(store.FinalPath(dir, i))
		if err != nil {
			t.Fatalf("Failed to read %s: %v", fmt.Sprintf("sample_%d.pkl", i), err)
		}
		out = append(out, rec)
	}
	return out
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
