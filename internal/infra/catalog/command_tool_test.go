package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"holmes/internal/domain"
	"holmes/internal/infra/process"
)

func TestRenderCommand(t *testing.T) {
	tests := []struct {
		name     string
		template string
		params   map[string]any
		want     string
	}{
		{
			name:     "quotes values",
			template: "kubectl get pods -n {{ namespace }}",
			params:   map[string]any{"namespace": "payments"},
			want:     "kubectl get pods -n 'payments'",
		},
		{
			name:     "escapes single quotes",
			template: "echo {{msg}}",
			params:   map[string]any{"msg": "it's; rm -rf /"},
			want:     `echo 'it'"'"'s; rm -rf /'`,
		},
		{
			name:     "missing renders empty",
			template: "logs {{ pod }} {{ container }}",
			params:   map[string]any{"pod": "api-0"},
			want:     "logs 'api-0' ''",
		},
		{
			name:     "non-string values",
			template: "tail -n {{ lines }}",
			params:   map[string]any{"lines": 50},
			want:     "tail -n '50'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, renderCommand(tt.template, tt.params))
		})
	}
}

func TestCommandInvoker(t *testing.T) {
	invoke := commandInvoker(zap.NewNop(), process.Shell{}, 5*time.Second, "echo", "printf %s {{ text }}")

	result := invoke(context.Background(), map[string]any{"text": "hello"})
	require.Equal(t, domain.ToolResultSuccess, result.Status)
	require.Equal(t, "hello", result.Data)
	require.Equal(t, map[string]any{"text": "hello"}, result.Params)

	result = invoke(context.Background(), map[string]any{"text": ""})
	require.Equal(t, domain.ToolResultNoData, result.Status)
}

func TestCommandInvoker_NonZeroExit(t *testing.T) {
	invoke := commandInvoker(zap.NewNop(), process.Shell{}, 5*time.Second, "fail", "echo broken >&2; exit 4")

	result := invoke(context.Background(), nil)

	require.Equal(t, domain.ToolResultError, result.Status)
	require.Equal(t, "command fail exited with code 4: broken", result.Error)
}
