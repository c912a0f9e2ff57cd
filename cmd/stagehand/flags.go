package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// requireFile checks that path names an existing regular file.
func requireFile(kind, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%s is required", kind)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s path: %w", kind, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%s does not exist: %w", kind, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s path %s is a directory", kind, abs)
	}
	return abs, nil
}

// logLevel picks the effective level: flags win over the job setting.
func logLevel(flags *rootFlags, fromJob string) string {
	switch {
	case flags != nil && flags.verbose:
		return "debug"
	case flags != nil && flags.logLevel != "":
		return flags.logLevel
	case fromJob != "":
		return fromJob
	default:
		return "info"
	}
}
