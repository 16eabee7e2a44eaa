// Package verify provides the built-in structure verifier. It checks the
// resolved descriptor itself; bytecode-level compatibility checks are an
// external collaborator plugged in through the same port.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"plugincheck.dev/cli/internal/core/descriptor"
	"plugincheck.dev/cli/internal/core/ports"
)

// StructureVerifier implements ports.Verifier with descriptor-level
// checks only.
type StructureVerifier struct {
	log *slog.Logger
}

// NewStructureVerifier creates a structure verifier. log may be nil.
func NewStructureVerifier(log *slog.Logger) *StructureVerifier {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &StructureVerifier{log: log}
}

type targetState struct {
	path string
}

func (t *targetState) Release() error { return nil }

// NewTargetState checks the target build file is readable and wraps it.
func (v *StructureVerifier) NewTargetState(ctx context.Context, path string) (ports.TargetState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("target build is not readable: %w", err)
	}
	return &targetState{path: path}, nil
}

// Verify reports descriptor-level problems: missing identity fields and
// unresolved optional configs carried over as hints.
func (v *StructureVerifier) Verify(ctx context.Context, state ports.TargetState, d *descriptor.Descriptor, pluginPath string) (ports.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return ports.Verdict{}, err
	}

	var found []string
	if d.ID == "" {
		found = append(found, "descriptor declares neither id nor name")
	}
	if d.Version == "" {
		found = append(found, "descriptor declares no version")
	}
	found = append(found, d.Hints...)

	verdict := ports.Verdict{
		Compatible: d.ID != "" && d.Version != "",
		Problems:   found,
	}
	v.log.Debug("structure check finished",
		"plugin", d.ID, "compatible", verdict.Compatible, "problems", len(found))
	return verdict, nil
}
