package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dexwhitelist/whitelistd/internal/chainmodel"
)

func TestParseFilenameRoundTrip(t *testing.T) {
	name := FormatFilename("ethereum", 100, 10099, "parquet")
	start, end, ok := ParseFilename(name)
	require.True(t, ok)
	require.Equal(t, uint64(100), start)
	require.Equal(t, uint64(10099), end)
}

func TestParseFilenameRejectsGarbage(t *testing.T) {
	_, _, ok := ParseFilename("not_a_batch_file.txt")
	require.False(t, ok)
}

func TestListBatchFilesSortedByEnd(t *testing.T) {
	dir := t.TempDir()
	writeEmpty(t, filepath.Join(dir, FormatFilename("ethereum", 20000, 29999, "parquet")))
	writeEmpty(t, filepath.Join(dir, FormatFilename("ethereum", 0, 9999, "parquet")))
	writeEmpty(t, filepath.Join(dir, FormatFilename("ethereum", 10000, 19999, "parquet")))
	writeEmpty(t, filepath.Join(dir, "README.md"))

	files, err := ListBatchFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 3)
	require.Equal(t, uint64(9999), files[0].End)
	require.Equal(t, uint64(19999), files[1].End)
	require.Equal(t, uint64(29999), files[2].End)
}

func writeEmpty(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

type fakeCheckpoints struct {
	value uint64
	has   bool
}

func (f fakeCheckpoints) Get(ctx context.Context, chain chainmodel.Chain, protocol chainmodel.Protocol) (uint64, bool, error) {
	return f.value, f.has, nil
}

type fakeBlocks struct{ n uint64 }

func (f fakeBlocks) FinalizedBlockNumber(ctx context.Context) (uint64, error) { return f.n, nil }

// TestIngestTrimsTailOnResume simulates scenario S4 (spec.md §8): a prior
// run crashed after writing the last extractor file but before advancing
// the checkpoint. On restart, that tail file must be removed before the
// extractor is invoked again, since the checkpoint (not the filename) is
// authoritative for where to resume.
func TestIngestTrimsTailOnResume(t *testing.T) {
	dir := t.TempDir()
	// Simulates a completed batch [0,9999] plus an untrustworthy crashed
	// tail [10000,19999].
	writeEmpty(t, filepath.Join(dir, FormatFilename("ethereum", 0, 9999, "parquet")))
	tail := filepath.Join(dir, FormatFilename("ethereum", 10000, 19999, "parquet"))
	writeEmpty(t, tail)

	in := New(fakeCheckpoints{value: 9999, has: true}, fakeBlocks{n: 9999})

	// ExtractorPath points at a binary that would exit non-zero; it is never
	// run here, so the assertions below do not depend on extractor output.
	_, err := in.Ingest(context.Background(), Request{
		Chain:           chainmodel.ChainEthereum,
		Protocol:        chainmodel.ProtocolV2,
		DeploymentBlock: 0,
		OutputDir:       dir,
		ExtractorPath:   "/bin/false",
	})

	// finalized == checkpoint, so Ingest returns NoNewBlocks before ever
	// invoking the extractor — trimTail must already have run by then.
	require.NoError(t, err)
	if _, statErr := os.Stat(tail); !os.IsNotExist(statErr) {
		t.Fatalf("expected crashed tail file to be removed, stat err = %v", statErr)
	}
}
