package checkdef

import (
	"bytes"
	_ "embed"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

//go:embed check_v1.schema.json
var schemaJSON []byte

// Validator handles check definition validation
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator creates a validator backed by the embedded schema.
func NewValidator() (*Validator, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to decode embedded schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("check_v1.schema.json", doc); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	schema, err := compiler.Compile("check_v1.schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

// ValidateDirectory loads and validates all check files in a directory
func (v *Validator) ValidateDirectory(dirPath string) []ValidationError {
	withFiles, loadErrors := LoadFromDirectory(dirPath)

	var allErrors []ValidationError
	allErrors = append(allErrors, loadErrors...)

	if len(withFiles) == 0 {
		return allErrors
	}

	return append(allErrors, v.ValidateAll(withFiles)...)
}

// ValidateAll validates each loaded check and the rules that span files.
func (v *Validator) ValidateAll(withFiles []CheckWithFile) []ValidationError {
	var allErrors []ValidationError
	for _, cf := range withFiles {
		allErrors = append(allErrors, v.ValidateCheck(cf.File, cf.Check)...)
	}
	return append(allErrors, validateUniqueIDs(withFiles)...)
}

// ValidateCheck validates a single check against the JSON schema and the
// semantic rules the schema cannot express.
func (v *Validator) ValidateCheck(file string, c *Check) []ValidationError {
	errors := v.validateSchema(file, c)
	return append(errors, validateSemantics(file, c)...)
}

// validateSchema validates a single check against the JSON schema
func (v *Validator) validateSchema(file string, c *Check) []ValidationError {
	var errors []ValidationError

	// Round-trip through YAML to get a generic document for the schema
	yamlBytes, err := yaml.Marshal(c)
	if err != nil {
		errors = append(errors, ValidationError{
			File:    file,
			Message: fmt.Sprintf("failed to marshal check: %v", err),
		})
		return errors
	}

	var doc interface{}
	if err := yaml.Unmarshal(yamlBytes, &doc); err != nil {
		errors = append(errors, ValidationError{
			File:    file,
			Message: fmt.Sprintf("failed to convert to generic document: %v", err),
		})
		return errors
	}

	if err := v.schema.Validate(doc); err != nil {
		if validationErr, ok := err.(*jsonschema.ValidationError); ok {
			errors = append(errors, extractSchemaErrors(file, validationErr)...)
		} else {
			errors = append(errors, ValidationError{
				File:    file,
				Message: err.Error(),
			})
		}
	}

	return errors
}

// extractSchemaErrors converts JSON schema validation errors to ValidationErrors
func extractSchemaErrors(file string, err *jsonschema.ValidationError) []ValidationError {
	var errors []ValidationError

	path := strings.Join(err.InstanceLocation, ".")
	if path == "" {
		path = "(root)"
	}

	errors = append(errors, ValidationError{
		File:    file,
		Path:    path,
		Message: err.Error(),
	})

	for _, cause := range err.Causes {
		errors = append(errors, extractSchemaErrors(file, cause)...)
	}

	return errors
}

// validateSemantics applies the rules the JSON schema cannot express.
func validateSemantics(file string, c *Check) []ValidationError {
	var errors []ValidationError

	if c.Spec.Password == "" && c.Spec.PasswordEnv == "" {
		errors = append(errors, ValidationError{
			File:    file,
			Path:    "spec",
			Message: "one of password or passwordEnv is required",
		})
	}
	if c.Spec.Thresholds.Critical <= 0 {
		errors = append(errors, ValidationError{
			File:    file,
			Path:    "spec.thresholds.critical",
			Message: "must be greater than zero",
		})
	}
	if c.Spec.Thresholds.Warning > c.Spec.Thresholds.Critical {
		errors = append(errors, ValidationError{
			File: file,
			Path: "spec.thresholds",
			Message: fmt.Sprintf("warning (%v) must be <= critical (%v)",
				c.Spec.Thresholds.Warning, c.Spec.Thresholds.Critical),
		})
	}

	for _, field := range []struct {
		path  string
		value string
	}{
		{"spec.retryDelay", c.Spec.RetryDelay},
		{"spec.interval", c.Spec.Interval},
		{"spec.timeout", c.Spec.Timeout},
	} {
		if field.value == "" {
			continue
		}
		if _, err := ParseDuration(field.value); err != nil {
			errors = append(errors, ValidationError{
				File:    file,
				Path:    field.path,
				Message: err.Error(),
			})
		}
	}

	return errors
}

// validateUniqueIDs rejects definitions that reuse a check id
func validateUniqueIDs(withFiles []CheckWithFile) []ValidationError {
	var errors []ValidationError

	idSeen := make(map[string]string)
	for _, cf := range withFiles {
		id := cf.Check.Metadata.ID
		if prevFile, exists := idSeen[id]; exists {
			errors = append(errors, ValidationError{
				File:    cf.File,
				Path:    "metadata.id",
				Message: fmt.Sprintf("duplicate ID %q (also in %s)", id, filepath.Base(prevFile)),
			})
			continue
		}
		idSeen[id] = cf.File
	}

	return errors
}
