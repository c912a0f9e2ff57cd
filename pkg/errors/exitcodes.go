package errors

import (
	stderrors "errors"
	"sort"
)

const (
	// ExitSuccess is returned when every stage validated.
	ExitSuccess = 0
	// ExitUnknown is returned for failures outside the registry.
	ExitUnknown = 1
)

var exitCodes = map[string]int{
	"OK":                       ExitSuccess,
	string(CategorySetup):      10,
	string(CategoryExecution):  11,
	string(CategoryNoEvents):   12,
	string(CategoryValidation): 13,
	string(CategoryLogfile):    14,
	string(CategoryOutputFile): 15,
	string(CategoryInputFile):  16,
	string(CategoryGraph):      17,
	"CONFIG_ERROR":             20,
}

// ExitCode resolves a failure name to its process exit code.
func ExitCode(name string) int {
	if code, ok := exitCodes[name]; ok {
		return code
	}
	return ExitUnknown
}

// ExitName is the inverse of ExitCode. Unknown codes map to "UNKNOWN".
func ExitName(code int) string {
	names := make([]string, 0, len(exitCodes))
	for name := range exitCodes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if exitCodes[name] == code {
			return name
		}
	}
	return "UNKNOWN"
}

// CodeFor maps any error to an exit code. Nil is success.
func CodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if stageErr, ok := AsStageError(err); ok {
		return stageErr.ExitCode()
	}
	var parseErr *ParseError
	var valErr *ValidationError
	if stderrors.As(err, &parseErr) || stderrors.As(err, &valErr) {
		return ExitCode("CONFIG_ERROR")
	}
	return ExitUnknown
}
