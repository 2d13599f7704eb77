// Package schema validates Gym server payloads against embedded JSON Schemas
// before they are decoded into typed responses.
package schema

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Name identifies an embedded schema.
type Name string

const (
	SessionCreated   Name = "session_created.json"
	EnvironmentList  Name = "environment_list.json"
	Observation      Name = "observation.json"
	StepStrict       Name = "step_strict.json"
	StepOptional     Name = "step_optional.json"
	Membership       Name = "membership.json"
	ActionSample     Name = "action_sample.json"
	ObservationSpace Name = "observation_space.json"
	ActionSpace      Name = "action_space.json"
)

const baseURL = "https://schemas.gym-http.dev/v1/"

//go:embed schemas/*.json
var files embed.FS

// Registry holds the compiled schemas.
type Registry struct {
	schemas map[Name]*jsonschema.Schema
}

var defaultRegistry = sync.OnceValues(Load)

// Default returns the process-wide registry, compiling it on first use.
func Default() (*Registry, error) {
	return defaultRegistry()
}

// Load compiles every embedded schema.
func Load() (*Registry, error) {
	entries, err := fs.ReadDir(files, "schemas")
	if err != nil {
		return nil, fmt.Errorf("schema: read embedded dir: %w", err)
	}

	c := jsonschema.NewCompiler()
	for _, e := range entries {
		raw, err := files.ReadFile(path.Join("schemas", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("schema: read %s: %w", e.Name(), err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("schema: parse %s: %w", e.Name(), err)
		}
		if err := c.AddResource(baseURL+e.Name(), doc); err != nil {
			return nil, fmt.Errorf("schema: add %s: %w", e.Name(), err)
		}
	}

	r := &Registry{schemas: make(map[Name]*jsonschema.Schema)}
	for _, name := range []Name{
		SessionCreated, EnvironmentList, Observation, StepStrict, StepOptional,
		Membership, ActionSample, ObservationSpace, ActionSpace,
	} {
		sch, err := c.Compile(baseURL + string(name))
		if err != nil {
			return nil, fmt.Errorf("schema: compile %s: %w", name, err)
		}
		r.schemas[name] = sch
	}
	return r, nil
}

// Validate checks that body is a JSON document accepted by the named schema.
func (r *Registry) Validate(name Name, body []byte) error {
	sch, ok := r.schemas[name]
	if !ok {
		return fmt.Errorf("schema: unknown schema %q", name)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("schema: %s: malformed json: %w", name, err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("schema: %s: %w", name, err)
	}
	return nil
}
