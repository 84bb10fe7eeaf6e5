package scrape

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dexwhitelist/whitelistd/internal/chainmodel"
)

type fakeReader struct {
	word [32]byte
	err  error
}

func (f *fakeReader) StorageAt(ctx context.Context, addr common.Address, slot common.Hash, block uint64) ([32]byte, error) {
	return f.word, f.err
}

type fakeBlocks struct{ n uint64 }

func (f *fakeBlocks) BlockNumber(ctx context.Context) (uint64, error) { return f.n, nil }

type fakePublisher struct{ calls int }

func (f *fakePublisher) PublishReferenceBlock(ctx context.Context, chain chainmodel.Chain, report chainmodel.BatchReport, total int) error {
	f.calls++
	return nil
}

func TestChunkSplitsEvenly(t *testing.T) {
	pools := make([]chainmodel.DiscoveredPool, 5)
	chunks := chunk(pools, 2)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if len(chunks[0]) != 2 || len(chunks[2]) != 1 {
		t.Fatalf("unexpected chunk sizes: %v", chunks)
	}
}

func TestChunkEmptyInputYieldsNoChunks(t *testing.T) {
	if chunks := chunk(nil, 5); chunks != nil {
		t.Fatalf("expected nil chunks for empty input, got %v", chunks)
	}
}

func TestScrapeOrdersBatchesV2ThenV3ThenV4(t *testing.T) {
	var idV2, idV3, idV4 chainmodel.PoolID
	idV2[31], idV3[31], idV4[31] = 1, 2, 3

	pools := []chainmodel.DiscoveredPool{
		{PoolID: idV4, Protocol: chainmodel.ProtocolV4},
		{PoolID: idV2, Protocol: chainmodel.ProtocolV2},
		{PoolID: idV3, Protocol: chainmodel.ProtocolV3},
	}

	reader := &fakeReader{}
	blocks := &fakeBlocks{n: 100}
	pub := &fakePublisher{}
	s := New(reader, blocks, pub)

	_, reports, err := s.Scrape(context.Background(), pools, Options{Mode: chainmodel.ModeFiltering})
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}
	if len(reports) != 3 {
		t.Fatalf("got %d batch reports, want 3", len(reports))
	}
	order := []chainmodel.Protocol{reports[0].Protocol, reports[1].Protocol, reports[2].Protocol}
	want := []chainmodel.Protocol{chainmodel.ProtocolV2, chainmodel.ProtocolV3, chainmodel.ProtocolV4}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("batch %d protocol = %s, want %s", i, order[i], want[i])
		}
	}
	if pub.calls != 3 {
		t.Fatalf("publisher called %d times, want 3", pub.calls)
	}
}

func TestScrapeRecordsPerPoolFailureAndContinues(t *testing.T) {
	var id1, id2 chainmodel.PoolID
	id1[31], id2[31] = 1, 2

	pools := []chainmodel.DiscoveredPool{
		{PoolID: id1, Protocol: chainmodel.ProtocolV2},
		{PoolID: id2, Protocol: chainmodel.ProtocolV2},
	}

	reader := &fakeReader{err: context.DeadlineExceeded}
	blocks := &fakeBlocks{n: 100}
	s := New(reader, blocks, nil)

	states, reports, err := s.Scrape(context.Background(), pools, Options{Mode: chainmodel.ModeFiltering})
	if err != nil {
		t.Fatalf("Scrape returned a top-level error on per-pool failures: %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("got %d states, want 2", len(states))
	}
	for _, st := range states {
		if st.Err == nil {
			t.Fatalf("expected every pool state to carry the read error")
		}
	}
	if reports[0].PoolsFailed != 2 {
		t.Fatalf("PoolsFailed = %d, want 2", reports[0].PoolsFailed)
	}
}

func TestWaitForNextBlockReturnsOnceBlockAdvances(t *testing.T) {
	blocks := &fakeBlocks{n: 10}
	s := New(&fakeReader{}, blocks, nil)

	done := make(chan error, 1)
	go func() {
		done <- s.waitForNextBlock(context.Background(), 10, time.Millisecond)
	}()

	time.Sleep(5 * time.Millisecond)
	blocks.n = 11

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("waitForNextBlock returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("waitForNextBlock did not return after block advanced")
	}
}
