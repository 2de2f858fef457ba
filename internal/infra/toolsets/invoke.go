package toolsets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"holmes/internal/domain"
	"holmes/internal/infra/telemetry"
)

// Invoke runs a tool of a usable toolset. Every failure is returned as an
// error result.
func (m *Manager) Invoke(ctx context.Context, toolsetName, toolName string, params map[string]any) domain.ToolResult {
	ctx, meta := telemetry.WithInvocation(ctx)
	logger := m.logger.With(telemetry.InvocationFields(meta)...).With(
		telemetry.ToolsetField(toolsetName),
		telemetry.ToolField(toolName),
	)

	m.ensureTools(ctx, toolsetName)
	tool, err := m.lookupTool(toolsetName, toolName)
	if err != nil {
		code, _ := domain.CodeFrom(err)
		logger.Debug("tool invocation rejected", zap.String("code", string(code)), zap.Error(err))
		result := domain.ErrorResult("%v", err)
		result.Params = params
		return result
	}
	if err := tool.ValidateParams(params); err != nil {
		result := domain.ErrorResult("%v", err)
		result.Params = params
		return result
	}

	start := time.Now()
	result := invokeSafely(ctx, tool, params)
	duration := telemetry.DurationField(time.Since(start))
	if result.Status == domain.ToolResultError {
		logger.Warn("tool invocation failed",
			telemetry.EventField(telemetry.EventToolFailure),
			duration,
			zap.String("error", result.Error),
		)
	} else {
		logger.Debug("tool invoked",
			telemetry.EventField(telemetry.EventToolInvoke),
			zap.String("status", string(result.Status)),
			duration,
		)
	}
	return result
}

func (m *Manager) lookupTool(toolsetName, toolName string) (domain.Tool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	toolset, ok := m.byName[toolsetName]
	if !ok {
		return domain.Tool{}, fmt.Errorf("%w: %s", domain.ErrToolsetNotFound, toolsetName)
	}
	if !toolset.Usable() {
		reason := toolset.Error
		if !toolset.Enabled {
			reason = "not enabled in configuration"
		} else if reason == "" {
			reason = "status " + string(toolset.Status)
		}
		return domain.Tool{}, fmt.Errorf("%w: %s: %s", domain.ErrToolsetDisabled, toolsetName, reason)
	}
	tool, ok := toolset.Tool(toolName)
	if !ok {
		return domain.Tool{}, fmt.Errorf("%w: %s/%s", domain.ErrToolNotFound, toolsetName, toolName)
	}
	if tool.Invoke == nil {
		return domain.Tool{}, errors.New("tool " + toolName + " has no entrypoint")
	}
	return tool, nil
}

func invokeSafely(ctx context.Context, tool domain.Tool, params map[string]any) (result domain.ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			result = domain.ErrorResult("tool %s panicked: %v", tool.Name, r)
			result.Params = params
		}
	}()
	return tool.Invoke(ctx, params)
}
