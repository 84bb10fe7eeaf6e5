// Package extractor wraps the external log-extraction binary (spec.md §6):
// a child process that, given an RPC endpoint and a block range, emits one
// columnar file per inner sub-range. This package owns process invocation
// only; filename discovery and checkpoint logic live in internal/ingest.
package extractor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/ethereum/go-ethereum/log"
)

// Config configures one extractor invocation.
type Config struct {
	BinaryPath      string
	RPCURL          string
	InnerRequestSize uint64 // default 10,000 blocks, per spec.md §4.A
	StartBlock      uint64
	EndBlock        uint64
	OutputDir       string
	Contracts       []string
	Events          []string
}

// ErrExtractorFailed wraps a non-zero exit, carrying stderr verbatim so the
// orchestrator can surface it (spec.md §7: ExtractorFailed aborts the
// protocol's ingest for this cycle only).
type ErrExtractorFailed struct {
	ExitErr error
	Stderr  string
}

func (e *ErrExtractorFailed) Error() string {
	return fmt.Sprintf("extractor: exited with error %v: %s", e.ExitErr, e.Stderr)
}

func (e *ErrExtractorFailed) Unwrap() error { return e.ExitErr }

// Run invokes the extractor binary over [StartBlock, EndBlock] and blocks
// until it exits. Stdout is discarded per the contract; stderr is captured
// for failure reporting.
func Run(ctx context.Context, cfg Config) error {
	if cfg.InnerRequestSize == 0 {
		cfg.InnerRequestSize = 10_000
	}

	args := []string{
		"logs",
		"--rpc", cfg.RPCURL,
		"--inner-request-size", fmt.Sprint(cfg.InnerRequestSize),
		"--blocks", fmt.Sprintf("%d:%d", cfg.StartBlock, cfg.EndBlock),
		"--output-dir", cfg.OutputDir,
	}
	for _, c := range cfg.Contracts {
		args = append(args, "--contract", c)
	}
	for _, e := range cfg.Events {
		args = append(args, "--event", e)
	}

	logger := log.New("component", "extractor")
	logger.Info("invoking log extractor", "start", cfg.StartBlock, "end", cfg.EndBlock, "outputDir", cfg.OutputDir)

	cmd := exec.CommandContext(ctx, cfg.BinaryPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return &ErrExtractorFailed{ExitErr: err, Stderr: stderr.String()}
	}
	return nil
}
