// Package services wires the verification pipeline together: it groups
// work by target build, acquires artifacts from the file repository,
// resolves plugin descriptors and drives the external verifier.
package services

import (
	"context"
	"log/slog"

	"plugincheck.dev/cli/internal/core/artifact"
	"plugincheck.dev/cli/internal/core/descriptor"
	"plugincheck.dev/cli/internal/core/ports"
	"plugincheck.dev/cli/internal/core/problems"
	"plugincheck.dev/cli/internal/errs"
)

// VerificationTask is one (plugin, target) pair to verify.
type VerificationTask struct {
	Plugin artifact.Key
	Target artifact.Key
}

// Result is the per-task outcome. Err is non-nil for the recoverable
// "bad artifact" outcome; such a result never aborted its siblings.
type Result struct {
	Task       VerificationTask
	Descriptor *descriptor.Descriptor
	Verdict    ports.Verdict
	Err        error
}

// VerificationService orchestrates verification runs. Work is sequential
// within a group; verifiers may parallelize internally.
type VerificationService struct {
	repo     Repository
	resolver ports.Resolver
	verifier ports.Verifier
	log      *slog.Logger
	prepared map[artifact.Key]ports.TargetState
}

// Repository is the artifact acquisition surface the service needs.
type Repository interface {
	Acquire(ctx context.Context, key artifact.Key) (artifact.Lock, error)
	Release(lock artifact.Lock)
}

// ServiceOption configures a VerificationService.
type ServiceOption func(*VerificationService)

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *VerificationService) { s.log = log }
}

// WithPreparedTargetState supplies externally built, reusable target
// state. The service uses it without ever releasing it.
func WithPreparedTargetState(target artifact.Key, state ports.TargetState) ServiceOption {
	return func(s *VerificationService) { s.prepared[target] = state }
}

// NewVerificationService creates a verification orchestrator.
func NewVerificationService(repo Repository, resolver ports.Resolver, verifier ports.Verifier, opts ...ServiceOption) *VerificationService {
	s := &VerificationService{
		repo:     repo,
		resolver: resolver,
		verifier: verifier,
		log:      slog.New(slog.DiscardHandler),
		prepared: make(map[artifact.Key]ports.TargetState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VerifyAll verifies every task, grouped by target so target-side state is
// built once per target. Cancellation is checked between every artifact
// and every group and is reported distinctly from plugin defects; results
// for work completed before the abort are returned alongside the error.
func (s *VerificationService) VerifyAll(ctx context.Context, tasks []VerificationTask) ([]Result, error) {
	var order []artifact.Key
	groups := make(map[artifact.Key][]VerificationTask)
	for _, task := range tasks {
		if _, ok := groups[task.Target]; !ok {
			order = append(order, task.Target)
		}
		groups[task.Target] = append(groups[task.Target], task)
	}

	var results []Result
	for _, target := range order {
		if err := ctx.Err(); err != nil {
			return results, errs.Cancelled("verify", err)
		}
		groupResults, err := s.verifyGroup(ctx, target, groups[target])
		results = append(results, groupResults...)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// verifyGroup verifies all tasks sharing one target. Target state
// constructed here is released exactly once on every exit path; prepared
// state supplied from outside is never released.
func (s *VerificationService) verifyGroup(ctx context.Context, target artifact.Key, tasks []VerificationTask) (results []Result, err error) {
	state, ok := s.prepared[target]
	if !ok {
		lock, acquireErr := s.repo.Acquire(ctx, target)
		if acquireErr != nil {
			if errs.IsCancellation(acquireErr) {
				return nil, acquireErr
			}
			if errs.IsBadArtifact(acquireErr) {
				// The target itself is unobtainable: every task of the
				// group fails, siblings in other groups continue.
				for _, task := range tasks {
					results = append(results, Result{Task: task, Err: acquireErr})
				}
				return results, nil
			}
			return nil, acquireErr
		}
		defer s.repo.Release(lock)

		built, buildErr := s.verifier.NewTargetState(ctx, lock.Path)
		if buildErr != nil {
			if errs.IsCancellation(buildErr) {
				return nil, errs.Cancelled("verify", buildErr)
			}
			return nil, buildErr
		}
		state = built
		defer func() {
			if releaseErr := built.Release(); releaseErr != nil {
				s.log.Warn("failed to release target state", "target", target.String(), "err", releaseErr)
			}
		}()
	}

	for _, task := range tasks {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return results, errs.Cancelled("verify", ctxErr)
		}
		res, taskErr := s.verifyOne(ctx, state, task)
		results = append(results, res)
		if taskErr != nil {
			return results, taskErr
		}
	}
	return results, nil
}

// verifyOne runs a single task. A classified artifact defect lands in the
// result; cancellation and unclassified errors propagate.
func (s *VerificationService) verifyOne(ctx context.Context, state ports.TargetState, task VerificationTask) (Result, error) {
	res := Result{Task: task}

	lock, err := s.repo.Acquire(ctx, task.Plugin)
	if err != nil {
		return s.classify(res, err)
	}
	defer s.repo.Release(lock)

	d, err := s.resolver.Resolve(lock.Path, problems.New(s.log))
	if err != nil {
		return s.classify(res, err)
	}
	res.Descriptor = d

	verdict, err := s.verifier.Verify(ctx, state, d, lock.Path)
	if err != nil {
		return s.classify(res, err)
	}
	res.Verdict = verdict
	return res, nil
}

func (s *VerificationService) classify(res Result, err error) (Result, error) {
	if errs.IsCancellation(err) {
		return res, errs.Cancelled("verify", err)
	}
	if errs.IsBadArtifact(err) {
		s.log.Debug("bad artifact", "plugin", res.Task.Plugin.String(), "err", err)
		res.Err = err
		return res, nil
	}
	return res, err
}
