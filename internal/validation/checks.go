package validation

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
)

// CheckCommandExists verifies an executable can be run, either found on PATH
// or named by path.
func CheckCommandExists(command string) error {
	if command == "" {
		return errors.New("command name is required")
	}
	_, err := exec.LookPath(command)
	return err
}

// CheckFileExists verifies something exists at path.
func CheckFileExists(path string) error {
	_, err := stat(path)
	return err
}

// CheckFileNonEmpty verifies path is a regular file with content.
func CheckFileNonEmpty(path string) error {
	info, err := stat(path)
	switch {
	case err != nil:
		return err
	case !info.Mode().IsRegular():
		return fmt.Errorf("path %s is not a regular file", path)
	case info.Size() == 0:
		return fmt.Errorf("file %s is empty", path)
	}
	return nil
}

// FileMatches reports whether the content of path matches expr.
func FileMatches(path, expr string) (bool, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return false, fmt.Errorf("pattern %q: %w", expr, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	return re.Match(data), nil
}

// Resolve joins a relative file name onto dir.
func Resolve(dir, name string) string {
	if dir == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}

func stat(path string) (fs.FileInfo, error) {
	if path == "" {
		return nil, errors.New("path is required")
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("path %s does not exist", path)
	}
	return info, err
}
