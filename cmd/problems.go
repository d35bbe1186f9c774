package cmd

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// problemDirs maps each supported problem to its directory name under the
// dataset and store roots.
var problemDirs = map[string]string{
	"item_placement": "1_item_placement",
	"load_balancing": "2_load_balancing",
	"anonymous":      "3_anonymous",
}

// problemNames returns the supported problem names, sorted.
func problemNames() []string {
	names := make([]string, 0, len(problemDirs))
	for name := range problemDirs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// problemDir resolves a problem name or fails with the list of valid names.
func problemDir(problem string) (string, error) {
	dir, ok := problemDirs[problem]
	if !ok {
		return "", fmt.Errorf("unknown problem %q (valid: %s)", problem, strings.Join(problemNames(), ", "))
	}
	return dir, nil
}

// runLayout is where one generate run reads and writes.
type runLayout struct {
	TrainInstances string // <dataset>/<dir>/train
	ValidInstances string // <dataset>/<dir>/valid
	RunDir         string // <store>/samples/<dir>_dagger<k>
	Checkpoint     string // <store>/train_files/<dir>_dagger<k-1>/<checkpoint>, "" for k = 0
}

func newRunLayout(cfg *DatasetConfig, dir string, fileCount int) runLayout {
	l := runLayout{
		TrainInstances: filepath.Join(cfg.DatasetDir, dir, "train"),
		ValidInstances: filepath.Join(cfg.DatasetDir, dir, "valid"),
		RunDir:         filepath.Join(cfg.StoreDir, "samples", fmt.Sprintf("%s_dagger%d", dir, fileCount)),
	}
	if fileCount > 0 {
		l.Checkpoint = filepath.Join(cfg.StoreDir, "train_files",
			fmt.Sprintf("%s_dagger%d", dir, fileCount-1), cfg.CheckpointName)
	}
	return l
}
