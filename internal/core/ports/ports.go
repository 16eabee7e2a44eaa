// Package ports declares the interfaces the verification core depends on.
// Implementations live under internal/infrastructure; external verifiers
// are supplied by the embedding service.
package ports

import (
	"context"
	"io"

	"plugincheck.dev/cli/internal/core/artifact"
	"plugincheck.dev/cli/internal/core/descriptor"
	"plugincheck.dev/cli/internal/core/problems"
)

// Fetcher obtains the byte payload for an artifact key. The file
// repository calls it at most once per key across all concurrent acquires.
type Fetcher interface {
	Fetch(ctx context.Context, key artifact.Key) (io.ReadCloser, error)
}

// Resolver turns a plugin root (directory or archive on disk) into a
// merged descriptor.
type Resolver interface {
	Resolve(root string, probs problems.Problems) (*descriptor.Descriptor, error)
}

// TargetState is per-target verifier state, expensive to build and shared
// across every artifact verified against the same target.
type TargetState interface {
	Release() error
}

// Verdict is the outcome the external verifier reports for one artifact.
type Verdict struct {
	Compatible bool
	Problems   []string
}

// Verifier runs the binary-compatibility check proper. The check itself
// is outside this system; the orchestrator only drives it.
type Verifier interface {
	// NewTargetState builds verifier state for the target build whose
	// bytes live at path. Callers release the returned state.
	NewTargetState(ctx context.Context, path string) (TargetState, error)

	// Verify checks one plugin against previously built target state.
	Verify(ctx context.Context, state TargetState, d *descriptor.Descriptor, pluginPath string) (Verdict, error)
}
