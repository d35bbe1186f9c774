package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// InstancePattern matches compressed MPS instance files.
const InstancePattern = "*.mps.gz"

var (
	// ErrNoInstances is returned when an instance directory matches no files.
	ErrNoInstances = errors.New("no instances found")
	// ErrMissingBound is returned when an instance sidecar carries no usable bound.
	ErrMissingBound = errors.New("instance metadata has no initial_bound")
)

// Discover returns the sorted instance files directly under dir.
func Discover(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, InstancePattern))
	if err != nil {
		return nil, fmt.Errorf("listing instances in %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoInstances)
	}
	sort.Strings(paths)
	return paths, nil
}

// SidecarPath returns the metadata file for an instance: the file name with up
// to two extensions replaced by .json ("x.mps.gz" -> "x.json").
func SidecarPath(instance string) string {
	dir, name := filepath.Split(instance)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return filepath.Join(dir, name+".json")
}

// InstanceMeta is the subset of the sidecar this generator reads.
// primal_bound is the field name used by older instance sets.
type InstanceMeta struct {
	InitialBound *float64 `json:"initial_bound"`
	PrimalBound  *float64 `json:"primal_bound"`
}

// Bound returns the initial objective bound for the instance.
func (m InstanceMeta) Bound() (float64, bool) {
	if m.InitialBound != nil {
		return *m.InitialBound, true
	}
	if m.PrimalBound != nil {
		return *m.PrimalBound, true
	}
	return 0, false
}

// LoadInstanceMeta reads the sidecar of one instance.
func LoadInstanceMeta(instance string) (InstanceMeta, error) {
	path := SidecarPath(instance)
	data, err := os.ReadFile(path)
	if err != nil {
		return InstanceMeta{}, fmt.Errorf("reading instance metadata: %w", err)
	}
	var meta InstanceMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return InstanceMeta{}, fmt.Errorf("parsing instance metadata %s: %w", path, err)
	}
	return meta, nil
}

// Catalog is the immutable set of instances an episode may be drawn from,
// together with their initial bounds. Safe for concurrent reads.
type Catalog struct {
	paths  []string
	bounds map[string]float64
}

// LoadCatalog reads every sidecar up front so that missing metadata fails the
// run before any episode is dispatched.
func LoadCatalog(paths []string) (*Catalog, error) {
	if len(paths) == 0 {
		return nil, ErrNoInstances
	}
	c := &Catalog{
		paths:  append([]string(nil), paths...),
		bounds: make(map[string]float64, len(paths)),
	}
	for _, p := range paths {
		meta, err := LoadInstanceMeta(p)
		if err != nil {
			return nil, err
		}
		bound, ok := meta.Bound()
		if !ok {
			return nil, fmt.Errorf("%s: %w", SidecarPath(p), ErrMissingBound)
		}
		c.bounds[p] = bound
	}
	return c, nil
}

// NewCatalog builds a catalog from known bounds (no sidecar IO).
func NewCatalog(paths []string, bounds map[string]float64) (*Catalog, error) {
	if len(paths) == 0 {
		return nil, ErrNoInstances
	}
	c := &Catalog{paths: append([]string(nil), paths...), bounds: make(map[string]float64, len(paths))}
	for _, p := range paths {
		b, ok := bounds[p]
		if !ok {
			return nil, fmt.Errorf("%s: %w", p, ErrMissingBound)
		}
		c.bounds[p] = b
	}
	return c, nil
}

// Len returns the number of instances.
func (c *Catalog) Len() int {
	return len(c.paths)
}

// Path returns the i-th instance path.
func (c *Catalog) Path(i int) string {
	return c.paths[i]
}

// Bound returns the initial bound of a catalogued instance.
func (c *Catalog) Bound(path string) (float64, error) {
	b, ok := c.bounds[path]
	if !ok {
		return 0, fmt.Errorf("%s: %w", path, ErrMissingBound)
	}
	return b, nil
}
