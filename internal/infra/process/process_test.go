package process

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShellRun(t *testing.T) {
	tests := []struct {
		name     string
		command  string
		wantOut  string
		wantCode int
	}{
		{name: "stdout captured", command: "echo ready", wantOut: "ready\n"},
		{name: "non-zero exit is reported", command: "echo nope; exit 3", wantOut: "nope\n", wantCode: 3},
		{name: "stderr kept apart", command: "echo oops >&2", wantOut: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Shell{}.Run(context.Background(), tt.command, 5*time.Second)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOut, result.Stdout)
			assert.Equal(t, tt.wantCode, result.ExitCode)
		})
	}
}

func TestShellRun_Env(t *testing.T) {
	result, err := Shell{Env: []string{"HOLMES_PROCESS_TEST=ok"}}.Run(context.Background(), "printf %s \"$HOLMES_PROCESS_TEST\"", 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, "ok", result.Stdout)
}

func TestShellRun_Timeout(t *testing.T) {
	start := time.Now()
	result, err := Shell{}.Run(context.Background(), "sleep 5", 50*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
	require.Equal(t, -1, result.ExitCode)
	require.Less(t, time.Since(start), 4*time.Second)
}
