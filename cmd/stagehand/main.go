package main

import (
	"errors"
	"fmt"
	"os"

	stagehanderrors "github.com/alexisbeaulieu97/stagehand/pkg/errors"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(stagehanderrors.CodeFor(err))
	}
}

// exitError carries a job exit code that has already been reported.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("job exited with code %d (%s)", e.code, stagehanderrors.ExitName(e.code))
}
