package catalog

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"holmes/internal/domain"
	"holmes/internal/infra/process"
)

var paramPlaceholder = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// renderCommand substitutes {{ name }} placeholders with shell-quoted params.
// Missing params render as an empty string.
func renderCommand(template string, params map[string]any) string {
	return paramPlaceholder.ReplaceAllStringFunc(template, func(match string) string {
		name := paramPlaceholder.FindStringSubmatch(match)[1]
		value, ok := params[name]
		if !ok || value == nil {
			return "''"
		}
		return shellQuote(fmt.Sprint(value))
	})
}

func shellQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}

// commandInvoker runs a declarative shell tool.
func commandInvoker(logger *zap.Logger, runner process.Runner, timeout time.Duration, toolName, template string) domain.ToolInvoker {
	return func(ctx context.Context, params map[string]any) domain.ToolResult {
		command := renderCommand(template, params)
		result, err := runner.Run(ctx, command, timeout)
		if err != nil {
			logger.Warn("tool command failed", zap.String("tool", toolName), zap.Error(err))
			out := domain.ErrorResult("command %s failed: %v", toolName, err)
			out.Params = params
			return out
		}
		if result.ExitCode != 0 {
			detail := strings.TrimSpace(result.Stderr)
			if detail == "" {
				detail = strings.TrimSpace(result.Stdout)
			}
			out := domain.ErrorResult("command %s exited with code %d: %s", toolName, result.ExitCode, detail)
			out.Params = params
			return out
		}
		out := domain.SuccessResult(strings.TrimRight(result.Stdout, "\n"))
		out.Params = params
		return out
	}
}
