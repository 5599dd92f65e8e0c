package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Struct-tag validation is declarative via go-playground/validator; rules
// that cannot be expressed in tags live in validateCustomRules.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	switch cfg.UnderFS.Type {
	case "hdfs":
		address, _ := cfg.UnderFS.Hdfs["address"].(string)
		confPath, _ := cfg.UnderFS.Hdfs["conf_resource_path"].(string)
		if cfg.UnderFS.Prefix == "" && address == "" && confPath == "" {
			return fmt.Errorf("underfs.hdfs: one of prefix, address, or conf_resource_path is required")
		}
	case "s3":
		if bucket, _ := cfg.UnderFS.S3["bucket"].(string); bucket == "" {
			return fmt.Errorf("underfs.s3: bucket is required")
		}
	}

	if cfg.UnderFS.Prefix != "" && cfg.UnderFS.Type == "hdfs" &&
		!strings.HasPrefix(cfg.UnderFS.Prefix, "hdfs://") && strings.Contains(cfg.UnderFS.Prefix, "://") {
		return fmt.Errorf("underfs: prefix scheme does not match backend type %q", cfg.UnderFS.Type)
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly
// messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
