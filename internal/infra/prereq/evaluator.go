// Package prereq drives the per-toolset prerequisite state machine.
package prereq

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"holmes/internal/domain"
	"holmes/internal/infra/process"
	"holmes/internal/infra/telemetry"
)

// Options configures an Evaluator.
type Options struct {
	Logger    *zap.Logger
	Runner    process.Runner
	Timeout   time.Duration
	LookupEnv func(string) (string, bool)
	Metrics   domain.Metrics
}

// Evaluator turns a toolset's prerequisites into a status.
type Evaluator struct {
	logger    *zap.Logger
	runner    process.Runner
	timeout   time.Duration
	lookupEnv func(string) (string, bool)
	metrics   domain.Metrics
}

func NewEvaluator(opts Options) *Evaluator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	runner := opts.Runner
	if runner == nil {
		runner = process.Shell{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = domain.DefaultPrerequisiteTimeout
	}
	lookupEnv := opts.LookupEnv
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	return &Evaluator{
		logger:    logger.Named("prereq"),
		runner:    runner,
		timeout:   timeout,
		lookupEnv: lookupEnv,
		metrics:   opts.Metrics,
	}
}

// Evaluate resets the toolset to unknown, then checks prerequisites in order.
// The first failure sets the toolset to failed with that check's reason; only
// Status and Error are modified.
func (e *Evaluator) Evaluate(ctx context.Context, toolset *domain.Toolset) {
	if toolset == nil {
		return
	}
	toolset.ResetStatus()
	for i, prerequisite := range toolset.Prerequisites {
		start := time.Now()
		passed, reason := e.Check(ctx, prerequisite, toolset.Config)
		e.observe(toolset.Name, prerequisite.Kind, passed, time.Since(start))
		if passed {
			continue
		}
		if reason == "" {
			reason = fmt.Sprintf("prerequisite %s failed", prerequisite.Describe())
		}
		toolset.SetStatus(domain.ToolsetStatusFailed, reason)
		e.logger.Debug("toolset prerequisite failed",
			telemetry.EventField(telemetry.EventPrerequisiteCheck),
			telemetry.ToolsetField(toolset.Name),
			zap.Int("index", i),
			zap.String("prerequisite", prerequisite.Describe()),
			zap.String("reason", reason),
		)
		return
	}
	toolset.SetStatus(domain.ToolsetStatusEnabled, "")
}

// Check evaluates a single prerequisite against a merged config.
func (e *Evaluator) Check(ctx context.Context, prerequisite domain.Prerequisite, config map[string]any) (bool, string) {
	switch prerequisite.Kind {
	case domain.PrerequisiteStatic:
		if prerequisite.Enabled {
			return true, ""
		}
		reason := prerequisite.Reason
		if reason == "" {
			reason = "disabled by static prerequisite"
		}
		return false, reason
	case domain.PrerequisiteCommand:
		return e.checkCommand(ctx, prerequisite)
	case domain.PrerequisiteEnv:
		for _, name := range prerequisite.Env {
			if _, ok := e.lookupEnv(name); !ok {
				return false, fmt.Sprintf("environment variable %s is not set", name)
			}
		}
		return true, ""
	case domain.PrerequisiteCallable:
		return e.checkCallable(ctx, prerequisite, config)
	default:
		return false, fmt.Sprintf("unknown prerequisite kind %q", prerequisite.Kind)
	}
}

func (e *Evaluator) checkCommand(ctx context.Context, prerequisite domain.Prerequisite) (bool, string) {
	result, err := e.runner.Run(ctx, prerequisite.Command, e.timeout)
	if err != nil {
		return false, fmt.Sprintf("prerequisite command %q failed: %v", prerequisite.Command, err)
	}
	if result.ExitCode != 0 {
		reason := fmt.Sprintf("prerequisite command %q exited with code %d", prerequisite.Command, result.ExitCode)
		if detail := strings.TrimSpace(result.Stderr); detail != "" {
			reason += ": " + detail
		}
		return false, reason
	}
	if prerequisite.ExpectedOutput != "" && !strings.Contains(result.Stdout, prerequisite.ExpectedOutput) {
		return false, fmt.Sprintf("prerequisite command %q output did not contain %q", prerequisite.Command, prerequisite.ExpectedOutput)
	}
	return true, ""
}

type callableOutcome struct {
	passed bool
	reason string
}

func (e *Evaluator) checkCallable(ctx context.Context, prerequisite domain.Prerequisite, config map[string]any) (bool, string) {
	if prerequisite.Callable == nil {
		return false, "callable prerequisite has no function"
	}
	if ctx == nil {
		ctx = context.Background()
	}
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan callableOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callableOutcome{reason: fmt.Sprintf("prerequisite check panicked: %v", r)}
			}
		}()
		passed, reason := prerequisite.Callable(callCtx, config)
		done <- callableOutcome{passed: passed, reason: reason}
	}()

	select {
	case outcome := <-done:
		return outcome.passed, outcome.reason
	case <-callCtx.Done():
		return false, fmt.Sprintf("prerequisite %s timed out after %s", prerequisite.Describe(), e.timeout)
	}
}

func (e *Evaluator) observe(toolset string, kind domain.PrerequisiteKind, passed bool, duration time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.ObservePrerequisite(domain.PrerequisiteMetric{
		Toolset:  toolset,
		Kind:     kind,
		Passed:   passed,
		Duration: duration,
	})
}
