package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"vgrun/pkg/runtime"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Config is the on-disk tool-map configuration: a global container engine
// selector plus the mapping from logical tool name to image reference. An
// empty or "none" image reference keeps that tool on native execution even
// when an engine is selected.
type Config struct {
	Container string            `mapstructure:"container" validate:"required,oneof=Docker Singularity None"`
	Tools     map[string]string `mapstructure:"tools"`
}

// Load reads and validates a tool-map YAML file.
func Load(filePath string) (*Config, error) {
	// Check if file exists
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", filePath)
	}

	// Tool names contain dots (Platypus.py, hap.py); keep viper from
	// treating them as nested keys.
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetConfigFile(filePath)
	v.SetConfigType("yaml")
	v.SetDefault("container", string(runtime.EngineNone))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file - malformed YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration against the schema rules. Load runs it on
// every file, and it runs again whenever a CLI flag overrides a field.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// ToolMap builds the read-only registry the runner consumes.
func (c *Config) ToolMap() *runtime.ToolImageMap {
	return runtime.NewToolImageMap(c.Tools, runtime.EngineKind(c.Container))
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		var errorMessages []string
		for _, e := range validationErrors {
			errorMessages = append(errorMessages, formatFieldError(e))
		}

		if len(errorMessages) == 1 {
			return fmt.Errorf("validation error: %s", errorMessages[0])
		}

		result := "validation errors:\n"
		for _, msg := range errorMessages {
			result += fmt.Sprintf("  - %s\n", msg)
		}
		return fmt.Errorf("%s", result)
	}
	return fmt.Errorf("validation failed: %w", err)
}

// formatFieldError formats a single validation error into a user-friendly message.
func formatFieldError(e validator.FieldError) string {
	field := e.Field()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, tag)
	}
}
