package statuscache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// HashInput lists everything that can change a toolset's prerequisite outcome.
type HashInput struct {
	// Version identifies the running build; runtime.Version() when empty.
	Version     string
	Config      map[string]any
	CustomPaths []string
	BuiltinDir  string
}

// ComputeContentHash digests the inputs into a hex string.
// Identical inputs reproduce the same hash.
func ComputeContentHash(input HashInput) (string, error) {
	h := sha256.New()

	version := input.Version
	if version == "" {
		version = runtime.Version()
	}
	writeField(h, "version", version)

	config := input.Config
	if config == nil {
		config = map[string]any{}
	}
	raw, err := json.Marshal(config)
	if err != nil {
		return "", fmt.Errorf("marshal config for content hash: %w", err)
	}
	writeField(h, "config", string(raw))

	for _, path := range input.CustomPaths {
		writeField(h, "custom", path)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		writeField(h, "contents", string(data))
	}

	files, err := builtinFiles(input.BuiltinDir)
	if err != nil {
		return "", err
	}
	for _, file := range files {
		writeField(h, "builtin", file)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func writeField(h hash.Hash, label, value string) {
	fmt.Fprintf(h, "%s:%d:%s\n", label, len(value), value)
}

// builtinFiles returns "name|mtime|size" for each definition file directly under dir, sorted by name.
func builtinFiles(dir string) ([]string, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan builtin dir %s: %w", dir, err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !IsDefinitionFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat builtin file %s: %w", entry.Name(), err)
		}
		files = append(files, fmt.Sprintf("%s|%d|%d", entry.Name(), info.ModTime().UnixNano(), info.Size()))
	}
	sort.Strings(files)
	return files, nil
}

// IsDefinitionFile reports whether path has a toolset definition extension.
func IsDefinitionFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".toml":
		return true
	default:
		return false
	}
}
