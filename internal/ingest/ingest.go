// Package ingest implements the Log Ingestor (spec.md §4.A): it drives the
// external extractor over a resumable block range, applies the crash-safe
// "trim tail" primitive, and returns the inclusive end-block actually
// covered plus the ordered batch files produced.
package ingest

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gofrs/flock"

	"github.com/dexwhitelist/whitelistd/internal/chainmodel"
	"github.com/dexwhitelist/whitelistd/internal/extractor"
)

// CheckpointReader is the read side of the Checkpoint Store this component
// depends on (spec.md §4.B); kept as a narrow interface so ingest can be
// tested without a real relational store.
type CheckpointReader interface {
	Get(ctx context.Context, chain chainmodel.Chain, protocol chainmodel.Protocol) (uint64, bool, error)
}

// BlockResolver resolves the chain's current finalized head, used to fill
// in end_block_hint when the caller doesn't supply one (spec.md §4.A step 4).
type BlockResolver interface {
	FinalizedBlockNumber(ctx context.Context) (uint64, error)
}

// Request is one ingest() call's parameters (spec.md §4.A contract).
type Request struct {
	Chain            chainmodel.Chain
	Protocol         chainmodel.Protocol
	Variant          string
	Factories        []string
	Topic            string
	DeploymentBlock  uint64
	EndBlockHint     *uint64 // nil means "resolve via BlockResolver"
	OutputDir        string
	ExtractorPath    string
	RPCURL           string
	InnerRequestSize uint64
}

// Result is the ingest() return value.
type Result struct {
	CoveredEndBlock uint64
	BatchFiles      []BatchFile
	NoNewBlocks     bool // start_block > covered-range end: nothing to do this cycle
}

// Ingestor drives one protocol's log ingestion for one chain.
type Ingestor struct {
	Checkpoints CheckpointReader
	Blocks      BlockResolver
}

func New(checkpoints CheckpointReader, blocks BlockResolver) *Ingestor {
	return &Ingestor{Checkpoints: checkpoints, Blocks: blocks}
}

// Ingest implements the resumption protocol of spec.md §4.A:
//  1. read the checkpoint (or the deployment block if absent)
//  2. trim the tail file (the crash-safety step: the prior run may have
//     crashed mid-write on the last file, so its contents are not trusted)
//  3. start_block = max(checkpoint+1, deployment_block)
//  4. resolve end_block_hint to the finalized head if absent
//  5. invoke the extractor; on failure, return it verbatim (fatal for this
//     protocol this cycle, per §7); on success, return files with End > checkpoint
func (in *Ingestor) Ingest(ctx context.Context, req Request) (Result, error) {
	logger := log.New("component", "ingest", "chain", req.Chain, "protocol", req.Protocol)

	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("ingest: creating output dir: %w", err)
	}

	// The output_dir is exclusively owned by the Log Ingestor for the
	// duration of a cycle (spec.md §5); the advisory lock makes that
	// ownership crash-visible to a concurrently-started second process.
	lock := flock.New(req.OutputDir + ".lock")
	locked, err := lock.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		return Result{}, fmt.Errorf("ingest: locking output dir: %w", err)
	}
	if !locked {
		return Result{}, fmt.Errorf("ingest: output dir %q is locked by another process", req.OutputDir)
	}
	defer lock.Unlock()

	checkpoint, has, err := in.Checkpoints.Get(ctx, req.Chain, req.Protocol)
	if err != nil {
		return Result{}, fmt.Errorf("ingest: reading checkpoint: %w", err)
	}
	ck := req.DeploymentBlock
	if has {
		ck = checkpoint
	}

	if err := trimTail(req.OutputDir); err != nil {
		return Result{}, fmt.Errorf("ingest: trimming tail: %w", err)
	}

	startBlock := ck + 1
	if startBlock < req.DeploymentBlock {
		startBlock = req.DeploymentBlock
	}

	var endBlock uint64
	if req.EndBlockHint != nil {
		endBlock = *req.EndBlockHint
	} else {
		endBlock, err = in.Blocks.FinalizedBlockNumber(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("ingest: resolving finalized head: %w", err)
		}
	}

	if startBlock > endBlock {
		logger.Debug("nothing to ingest, already caught up", "checkpoint", ck, "finalized", endBlock)
		return Result{CoveredEndBlock: ck, NoNewBlocks: true}, nil
	}

	logger.Info("ingesting block range", "start", startBlock, "end", endBlock)

	err = extractor.Run(ctx, extractor.Config{
		BinaryPath:       req.ExtractorPath,
		RPCURL:           req.RPCURL,
		InnerRequestSize: req.InnerRequestSize,
		StartBlock:       startBlock,
		EndBlock:         endBlock,
		OutputDir:        req.OutputDir,
		Contracts:        req.Factories,
		Events:           []string{req.Topic},
	})
	if err != nil {
		// Fatal for this protocol in this cycle; no partial advance of the
		// checkpoint happens because the caller only advances it after a
		// successful Ingest() return (spec.md §7).
		return Result{}, err
	}

	all, err := ListBatchFiles(req.OutputDir)
	if err != nil {
		return Result{}, fmt.Errorf("ingest: listing output files: %w", err)
	}

	var covered []BatchFile
	maxEnd := ck
	for _, f := range all {
		if f.End > ck {
			covered = append(covered, f)
			if f.End > maxEnd {
				maxEnd = f.End
			}
		}
	}

	return Result{CoveredEndBlock: maxEnd, BatchFiles: covered}, nil
}

const lockRetryInterval = 50 * time.Millisecond // the lock is per-cycle and not contended in steady state

// trimTail removes the file whose End is maximal in outputDir: the prior
// run may have crashed while writing it, so even though its filename looks
// complete its contents are not trusted. The checkpoint, not the filename,
// is the source of truth for where to resume (spec.md §4.A step 2, §9).
func trimTail(outputDir string) error {
	files, err := ListBatchFiles(outputDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return nil
	}
	tail := files[len(files)-1]
	if err := os.Remove(tail.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing tail file %q: %w", tail.Path, err)
	}
	return nil
}
