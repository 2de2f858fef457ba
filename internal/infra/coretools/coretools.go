// Package coretools provides the always-on investigation toolset backed by the
// session stores.
package coretools

import (
	"context"
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"holmes/internal/domain"
	"holmes/internal/infra/catalog"
	"holmes/internal/infra/sessions"
)

const ToolsetName = "core_investigation"

type Options struct {
	Tasks      *sessions.TaskStore
	Hypotheses *sessions.HypothesisStore
}

// Builtin describes the core investigation toolset.
func Builtin(opts Options) catalog.Builtin {
	return catalog.Builtin{
		Name:          ToolsetName,
		Description:   "Plan the investigation and track hypotheses",
		Tags:          []string{"core"},
		Enabled:       true,
		Prerequisites: []domain.Prerequisite{domain.StaticPrerequisite(true, "")},
		Tools: func(map[string]any) []domain.Tool {
			return []domain.Tool{
				todoWrite(opts.Tasks),
				todoRead(opts.Tasks),
				updateHypotheses(opts.Hypotheses),
				listHypotheses(opts.Hypotheses),
			}
		},
	}
}

func Register(registry *catalog.Registry, opts Options) error {
	if opts.Tasks == nil || opts.Hypotheses == nil {
		return fmt.Errorf("%s requires task and hypothesis stores", ToolsetName)
	}
	return registry.Register(Builtin(opts))
}

var sessionParam = domain.ToolParameter{Type: "string", Required: true, Description: "Investigation session id"}

func todoWrite(store *sessions.TaskStore) domain.Tool {
	return domain.Tool{
		Name:        "todo_write",
		Description: "Replace the investigation task list of a session",
		Parameters: map[string]domain.ToolParameter{
			"session_id": sessionParam,
			"tasks":      {Type: "array", Required: true, Description: "Ordered tasks with id, content and status"},
		},
		Invoke: func(_ context.Context, params map[string]any) domain.ToolResult {
			var tasks []domain.Task
			if err := decode(params["tasks"], &tasks); err != nil {
				return withParams(domain.ErrorResult("invalid tasks: %v", err), params)
			}
			session, _ := params["session_id"].(string)
			stored, err := store.Set(session, tasks)
			if err != nil {
				return withParams(domain.ErrorResult("%v", err), params)
			}
			return withParams(domain.SuccessResult(sessions.FormatTasks(stored)), params)
		},
	}
}

func todoRead(store *sessions.TaskStore) domain.Tool {
	return domain.Tool{
		Name:        "todo_read",
		Description: "Show the investigation task list of a session",
		Parameters:  map[string]domain.ToolParameter{"session_id": sessionParam},
		Invoke: func(_ context.Context, params map[string]any) domain.ToolResult {
			session, _ := params["session_id"].(string)
			return withParams(domain.SuccessResult(sessions.FormatTasks(store.Get(session))), params)
		},
	}
}

func updateHypotheses(store *sessions.HypothesisStore) domain.Tool {
	return domain.Tool{
		Name:        "update_hypotheses",
		Description: "Add or update hypotheses; hypotheses not named are left untouched",
		Parameters: map[string]domain.ToolParameter{
			"hypotheses": {Type: "array", Required: true, Description: "Hypotheses with id, statement, status and evidence"},
		},
		Invoke: func(_ context.Context, params map[string]any) domain.ToolResult {
			var batch []domain.Hypothesis
			if err := decode(params["hypotheses"], &batch); err != nil {
				return withParams(domain.ErrorResult("invalid hypotheses: %v", err), params)
			}
			all, err := store.Update(batch)
			if err != nil {
				return withParams(domain.ErrorResult("%v", err), params)
			}
			return withParams(domain.SuccessResult(sessions.FormatHypotheses(all)), params)
		},
	}
}

func listHypotheses(store *sessions.HypothesisStore) domain.Tool {
	return domain.Tool{
		Name:        "list_hypotheses",
		Description: "Show every hypothesis in the order it was raised",
		Invoke: func(_ context.Context, params map[string]any) domain.ToolResult {
			return withParams(domain.SuccessResult(sessions.FormatHypotheses(store.All())), params)
		},
	}
}

func decode(input any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "json",
		ErrorUnused: true,
		Result:      out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

func withParams(result domain.ToolResult, params map[string]any) domain.ToolResult {
	result.Params = params
	return result
}
