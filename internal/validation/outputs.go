// Package validation holds the file checks run after a stage executes.
package validation

import (
	"fmt"
	"strings"
)

// Result captures the outcome of checking a single file.
type Result struct {
	Dataset string
	File    string
	Passed  bool
	Message string
	Error   error
}

// Target is one dataset whose files must exist after a stage.
type Target struct {
	Dataset string
	Files   []string
	// AllowEmpty accepts zero-byte files.
	AllowEmpty bool
}

// CheckOutputs runs the file checks for every target, resolving relative
// names against dir. The error lists every failing file.
func CheckOutputs(dir string, targets []Target) ([]Result, error) {
	var results []Result
	var failedMessages []string

	for _, target := range targets {
		if len(target.Files) == 0 {
			err := fmt.Errorf("dataset %s has no files", target.Dataset)
			results = append(results, Result{Dataset: target.Dataset, Message: err.Error(), Error: err})
			failedMessages = append(failedMessages, err.Error())
			continue
		}
		for _, file := range target.Files {
			result := Result{Dataset: target.Dataset, File: file}

			path := Resolve(dir, file)
			var err error
			if target.AllowEmpty {
				err = CheckFileExists(path)
			} else {
				err = CheckFileNonEmpty(path)
			}

			if err != nil {
				result.Message = err.Error()
				result.Error = err
				failedMessages = append(failedMessages, err.Error())
			} else {
				result.Passed = true
				result.Message = "passed"
			}
			results = append(results, result)
		}
	}

	if len(failedMessages) > 0 {
		return results, fmt.Errorf("output checks failed: %s", strings.Join(failedMessages, "; "))
	}
	return results, nil
}
