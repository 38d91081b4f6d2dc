// Package schema validates application documents against the embedded JSON schema.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/drsolutions/drsplan/pkg/models"
)

//go:embed application.schema.yaml
var applicationSchemaYAML []byte

// Validator checks application documents
type Validator struct {
	applicationSchema *jsonschema.Schema
}

// NewValidator compiles the embedded schemas
func NewValidator() (*Validator, error) {
	applicationSchema, err := compileYAML("application.schema.json", applicationSchemaYAML)
	if err != nil {
		return nil, fmt.Errorf("failed to load application schema: %w", err)
	}
	return &Validator{applicationSchema: applicationSchema}, nil
}

// ValidateApplication validates a decoded application
func (v *Validator) ValidateApplication(app models.Application) error {
	data, err := json.Marshal(app)
	if err != nil {
		return fmt.Errorf("failed to marshal application: %w", err)
	}
	return v.ValidateApplicationJSON(data)
}

// ValidateApplicationJSON validates a raw JSON application document
func (v *Validator) ValidateApplicationJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var doc interface{}
	if err := decoder.Decode(&doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return v.applicationSchema.Validate(doc)
}

// ValidateApplicationYAML validates a YAML (or JSON) application document
func (v *Validator) ValidateApplicationYAML(data []byte) error {
	data, err := YAMLToJSON(data)
	if err != nil {
		return err
	}
	return v.ValidateApplicationJSON(data)
}

// YAMLToJSON converts a YAML document to JSON
func YAMLToJSON(data []byte) ([]byte, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to convert YAML to JSON: %w", err)
	}
	return out, nil
}

// compileYAML compiles a schema written in YAML
func compileYAML(url string, data []byte) (*jsonschema.Schema, error) {
	jsonData, err := YAMLToJSON(data)
	if err != nil {
		return nil, err
	}

	schema, err := jsonschema.CompileString(url, string(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return schema, nil
}
