package process

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"
)

const skipPathPatchEnv = "HOLMES_SKIP_PATH_PATCH"

var (
	loginPathOnce sync.Once
	loginPath     string
)

// LoginPATHEnv returns a PATH override for commands started from a process
// that did not inherit a login shell, such as a macOS app bundle. It returns
// nil when env already looks like a terminal session.
func LoginPATHEnv(env []string) []string {
	if runtime.GOOS != "darwin" {
		return nil
	}
	if strings.TrimSpace(envValue(env, skipPathPatchEnv)) != "" {
		return nil
	}
	if strings.TrimSpace(envValue(env, "TERM")) != "" {
		return nil
	}
	shell := strings.TrimSpace(envValue(env, "SHELL"))
	if shell == "" {
		shell = "/bin/zsh"
	}
	loginPathOnce.Do(func() {
		loginPath = resolveLoginPATH(shell)
	})
	current := envValue(env, "PATH")
	merged := mergePATH(loginPath, current)
	if merged == "" || merged == current {
		return nil
	}
	return []string{"PATH=" + merged}
}

// envValue returns the last value of key in env, matching exec semantics.
func envValue(env []string, key string) string {
	prefix := key + "="
	var value string
	for _, entry := range env {
		if strings.HasPrefix(entry, prefix) {
			value = strings.TrimPrefix(entry, prefix)
		}
	}
	return value
}

func resolveLoginPATH(shell string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, shell, "-lc", "echo $PATH")
	cmd.Env = append(os.Environ(), "LANG=C", "LC_ALL=C")
	output, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(output))
}

// mergePATH joins both lists, primary entries first, dropping duplicates.
func mergePATH(primary, fallback string) string {
	separator := string(os.PathListSeparator)
	seen := make(map[string]struct{})
	var out []string
	for _, list := range []string{primary, fallback} {
		for _, entry := range strings.Split(list, separator) {
			entry = strings.TrimSpace(entry)
			if entry == "" {
				continue
			}
			if _, ok := seen[entry]; ok {
				continue
			}
			seen[entry] = struct{}{}
			out = append(out, entry)
		}
	}
	return strings.Join(out, separator)
}
