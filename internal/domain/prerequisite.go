package domain

import (
	"context"
	"fmt"
	"strings"
)

// PrerequisiteKind is the closed set of check kinds a toolset can declare.
type PrerequisiteKind string

const (
	PrerequisiteStatic   PrerequisiteKind = "static"
	PrerequisiteCommand  PrerequisiteKind = "command"
	PrerequisiteEnv      PrerequisiteKind = "env"
	PrerequisiteCallable PrerequisiteKind = "callable"
)

// PrerequisiteFunc checks a toolset against its merged config.
// A false result must carry a human-readable reason.
type PrerequisiteFunc func(ctx context.Context, config map[string]any) (bool, string)

// Prerequisite is a tagged union: only the fields belonging to Kind are meaningful.
type Prerequisite struct {
	Kind PrerequisiteKind

	// static
	Enabled bool
	Reason  string

	// command
	Command        string
	ExpectedOutput string

	// env
	Env []string

	// callable
	Name     string
	Callable PrerequisiteFunc
}

// StaticPrerequisite passes or fails unconditionally.
func StaticPrerequisite(enabled bool, reason string) Prerequisite {
	return Prerequisite{Kind: PrerequisiteStatic, Enabled: enabled, Reason: reason}
}

// CommandPrerequisite runs a shell command; expected may be empty.
func CommandPrerequisite(command, expected string) Prerequisite {
	return Prerequisite{Kind: PrerequisiteCommand, Command: command, ExpectedOutput: expected}
}

// EnvPrerequisite requires every named environment variable to be set.
func EnvPrerequisite(names ...string) Prerequisite {
	return Prerequisite{Kind: PrerequisiteEnv, Env: append([]string(nil), names...)}
}

// CallablePrerequisite runs a predicate over the toolset's merged config.
func CallablePrerequisite(name string, fn PrerequisiteFunc) Prerequisite {
	return Prerequisite{Kind: PrerequisiteCallable, Name: name, Callable: fn}
}

// Validate checks that the fields required by Kind are present.
func (p Prerequisite) Validate() error {
	switch p.Kind {
	case PrerequisiteStatic:
		return nil
	case PrerequisiteCommand:
		if strings.TrimSpace(p.Command) == "" {
			return fmt.Errorf("%w: command prerequisite requires a command", ErrInvalidDefinition)
		}
		return nil
	case PrerequisiteEnv:
		if len(p.Env) == 0 {
			return fmt.Errorf("%w: env prerequisite requires at least one variable", ErrInvalidDefinition)
		}
		for i, name := range p.Env {
			if strings.TrimSpace(name) == "" {
				return fmt.Errorf("%w: env[%d] must not be empty", ErrInvalidDefinition, i)
			}
		}
		return nil
	case PrerequisiteCallable:
		if p.Callable == nil {
			return fmt.Errorf("%w: callable prerequisite requires a function", ErrInvalidDefinition)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown prerequisite kind %q", ErrInvalidDefinition, p.Kind)
	}
}

// Describe returns a short label used in logs and metrics.
func (p Prerequisite) Describe() string {
	switch p.Kind {
	case PrerequisiteCommand:
		return "command: " + p.Command
	case PrerequisiteEnv:
		return "env: " + strings.Join(p.Env, ",")
	case PrerequisiteCallable:
		if p.Name != "" {
			return "callable: " + p.Name
		}
		return "callable"
	default:
		return string(p.Kind)
	}
}
