package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// StagingDirName is the subdirectory of an output directory holding unclaimed samples.
const StagingDirName = "tmp"

// Staging is the scratch directory workers write samples into before the
// collector assigns them their final sequence number.
type Staging struct {
	dir string
}

// NewStaging creates <outDir>/tmp (and outDir) if needed.
func NewStaging(outDir string) (*Staging, error) {
	dir := filepath.Join(outDir, StagingDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}
	return &Staging{dir: dir}, nil
}

// Dir returns the staging directory path.
func (s *Staging) Dir() string {
	return s.dir
}

// StagingPath returns the staging file name for the counter-th sample of an
// episode. Names are unique per (episode, counter).
func StagingPath(dir string, episode int64, counter int) string {
	return filepath.Join(dir, fmt.Sprintf("sample_%d_%d.pkl", episode, counter))
}

// StageRecord writes rec into dir as the counter-th sample of its episode and
// returns the file name.
func StageRecord(dir string, rec *Record, counter int) (string, error) {
	path := StagingPath(dir, rec.Episode, counter)
	if err := WriteRecord(path, rec); err != nil {
		return "", fmt.Errorf("staging episode %d sample %d: %w", rec.Episode, counter, err)
	}
	return path, nil
}

// Remove deletes the staging directory and anything still in it.
func (s *Staging) Remove() error {
	return os.RemoveAll(s.dir)
}

// FinalPath returns the n-th (1-indexed) dataset file name in outDir.
func FinalPath(outDir string, n int) string {
	return filepath.Join(outDir, fmt.Sprintf("sample_%d.pkl", n))
}

// Promote renames a staged sample to the n-th dataset file.
func Promote(stagingFile, outDir string, n int) (string, error) {
	dst := FinalPath(outDir, n)
	if err := os.Rename(stagingFile, dst); err != nil {
		return "", fmt.Errorf("promoting %s to sample %d: %w", stagingFile, n, err)
	}
	return dst, nil
}
