package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

// filenamePattern recovers the inclusive [S, E] block range a batch file
// covers from its name: "<chain>__logs__<S>_to_<E>.<ext>" (spec.md §4.A).
var filenamePattern = regexp.MustCompile(`__logs__(\d+)_to_(\d+)\.[A-Za-z0-9]+$`)

// BatchFile is one extractor output file, with its covered range parsed
// out of the filename.
type BatchFile struct {
	Path  string
	Start uint64
	End   uint64
}

// FormatFilename builds a filename embedding the inclusive covered range,
// matching the extractor's own naming contract.
func FormatFilename(chain string, start, end uint64, ext string) string {
	return fmt.Sprintf("%s__logs__%d_to_%d.%s", chain, start, end, ext)
}

// ParseFilename extracts (start, end) from a filename, or ok=false if it
// doesn't match the expected pattern (e.g. a stray or partial file).
func ParseFilename(name string) (start, end uint64, ok bool) {
	m := filenamePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, 0, false
	}
	s, err1 := strconv.ParseUint(m[1], 10, 64)
	e, err2 := strconv.ParseUint(m[2], 10, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return s, e, true
}

// ListBatchFiles scans outputDir for files matching the batch naming
// convention, sorted by End ascending (the order the resumption protocol
// and the "trim tail" step need).
func ListBatchFiles(outputDir string) ([]BatchFile, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ingest: reading output dir %q: %w", outputDir, err)
	}

	var files []BatchFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		start, end, ok := ParseFilename(e.Name())
		if !ok {
			continue
		}
		files = append(files, BatchFile{
			Path:  filepath.Join(outputDir, e.Name()),
			Start: start,
			End:   end,
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].End < files[j].End })
	return files, nil
}
