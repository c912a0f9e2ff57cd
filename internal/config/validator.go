package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/alexisbeaulieu97/stagehand/internal/datadict"
	stagehanderrors "github.com/alexisbeaulieu97/stagehand/pkg/errors"
)

// ValidateConfig performs schema and cross-field validation on the job definition.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return stagehanderrors.NewValidationError("config", "configuration is nil", nil)
	}

	v := validatorInstance()
	if err := v.Struct(cfg); err != nil {
		return convertValidationError(err)
	}

	datasets := make(map[string]Dataset, len(cfg.Datasets))
	for i, ds := range cfg.Datasets {
		if _, exists := datasets[ds.Type]; exists {
			return stagehanderrors.NewValidationError(fieldFor("datasets", i, "type"), fmt.Sprintf("duplicate dataset type %q", ds.Type), nil)
		}
		if ds.IO == string(datadict.IOInput) && len(ds.Files) == 0 {
			return stagehanderrors.NewValidationError(fieldFor("datasets", i, "files"), fmt.Sprintf("input dataset %q has no files", ds.Type), nil)
		}
		for file := range ds.Metadata {
			if !contains(ds.Files, file) {
				return stagehanderrors.NewValidationError(fieldFor("datasets", i, "metadata"), fmt.Sprintf("metadata for unknown file %q", file), nil)
			}
		}
		datasets[ds.Type] = ds
	}

	names := make(map[string]int, len(cfg.Stages))
	for i, stage := range cfg.Stages {
		if _, exists := names[stage.Name]; exists {
			return stagehanderrors.NewValidationError(fieldFor("stages", i, "name"), fmt.Sprintf("duplicate stage name %q", stage.Name), nil)
		}
		names[stage.Name] = i

		if err := validateStageData(stage, i, datasets); err != nil {
			return err
		}
	}

	if cycle := detectCycle(cfg.Stages); len(cycle) > 0 {
		return stagehanderrors.NewValidationError("stages", fmt.Sprintf("dataset cycle detected: %s", strings.Join(cycle, " -> ")), nil)
	}

	return nil
}

func validateStageData(stage Stage, index int, datasets map[string]Dataset) error {
	for _, in := range stage.Inputs {
		if _, ok := datasets[in]; !ok {
			return stagehanderrors.NewValidationError(fieldFor("stages", index, "inputs"), fmt.Sprintf("references unknown dataset %q", in), nil)
		}
	}
	for _, out := range stage.Outputs {
		ds, ok := datasets[out]
		if !ok {
			return stagehanderrors.NewValidationError(fieldFor("stages", index, "outputs"), fmt.Sprintf("references unknown dataset %q", out), nil)
		}
		if ds.IO == string(datadict.IOInput) {
			return stagehanderrors.NewValidationError(fieldFor("stages", index, "outputs"), fmt.Sprintf("dataset %q is a job input and cannot be produced", out), nil)
		}
		if contains(stage.Inputs, out) {
			return stagehanderrors.NewValidationError(fieldFor("stages", index, "outputs"), fmt.Sprintf("dataset %q is both input and output", out), nil)
		}
	}
	return nil
}

func convertValidationError(err error) error {
	if err == nil {
		return nil
	}

	var ves validator.ValidationErrors
	if errors.As(err, &ves) && len(ves) > 0 {
		ve := ves[0]
		field := yamlishFieldName(ve)
		msg := fmt.Sprintf("%s failed validation for tag '%s'", field, ve.Tag())
		return stagehanderrors.NewValidationError(field, msg, err)
	}

	return stagehanderrors.NewValidationError("config", err.Error(), err)
}

func yamlishFieldName(fe validator.FieldError) string {
	parts := strings.Split(fe.StructNamespace(), ".")
	lowered := make([]string, 0, len(parts))
	for _, part := range parts {
		lowered = append(lowered, strings.ToLower(part))
	}
	return strings.Join(lowered, ".")
}

func fieldFor(section string, index int, field string) string {
	return fmt.Sprintf("%s[%d].%s", section, index, field)
}

func contains(list []string, target string) bool {
	return indexOf(list, target) >= 0
}
