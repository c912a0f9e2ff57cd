package config

import (
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"

	stagehanderrors "github.com/alexisbeaulieu97/stagehand/pkg/errors"
)

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// ParseConfig reads and validates the job definition at path.
func ParseConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, stagehanderrors.NewParseError(path, 0, err)
	}
	return Parse(path, data)
}

// Parse decodes and validates a job definition already in memory. path is
// only used in error messages.
func Parse(path string, data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, stagehanderrors.NewParseError(path, extractLine(err), err)
	}

	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// extractLine pulls the first "line N" reference out of a yaml.v3 error.
func extractLine(err error) int {
	if err == nil {
		return 0
	}
	m := yamlLineRegex.FindStringSubmatch(err.Error())
	if m == nil {
		return 0
	}
	line, convErr := strconv.Atoi(m[1])
	if convErr != nil {
		return 0
	}
	return line
}
