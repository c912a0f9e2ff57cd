package config

import (
	"regexp"
	"slices"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/alexisbeaulieu97/stagehand/internal/datadict"
	"github.com/alexisbeaulieu97/stagehand/internal/executor"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	semverPattern      = regexp.MustCompile(`^\d+\.\d+(?:\.\d+)?(?:-[0-9A-Za-z-.]+)?(?:\+[0-9A-Za-z-.]+)?$`)
	stageNamePattern   = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
	datasetTypePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

	datasetIOs     = []string{string(datadict.IOInput), string(datadict.IOOutput), string(datadict.IOTemporary)}
	datasetFormats = []string{
		string(datadict.FormatPool), string(datadict.FormatNtuple), string(datadict.FormatHist),
		string(datadict.FormatByteStream), string(datadict.FormatCatalog), string(datadict.FormatArchive),
		string(datadict.FormatOther),
	}
)

// validatorInstance configures and returns the shared validator instance used across the config package.
func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		_ = v.RegisterValidation("semver", func(fl validator.FieldLevel) bool {
			return semverPattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("stage_name", func(fl validator.FieldLevel) bool {
			return stageNamePattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("stage_kind", func(fl validator.FieldLevel) bool {
			return slices.Contains(executor.Kinds(), fl.Field().String())
		})

		_ = v.RegisterValidation("dataset_type", func(fl validator.FieldLevel) bool {
			return datasetTypePattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("dataset_io", func(fl validator.FieldLevel) bool {
			return slices.Contains(datasetIOs, fl.Field().String())
		})

		_ = v.RegisterValidation("dataset_format", func(fl validator.FieldLevel) bool {
			return slices.Contains(datasetFormats, fl.Field().String())
		})

		validateInst = v
	})

	return validateInst
}

// GetValidator returns a configured validator instance for use outside the config package.
func GetValidator() *validator.Validate {
	return validatorInstance()
}
