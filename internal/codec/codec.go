// Package codec turns commands into request bodies and response bodies into
// typed results.
package codec

import (
	"bytes"
	"fmt"

	"github.com/segmentio/encoding/json"

	"github.com/gym-http/gymclient/internal/schema"
	"github.com/gym-http/gymclient/pkg/types"
)

// Encode serializes cmd as a compact JSON object. Field order follows the
// command's struct declaration and map keys are sorted.
func Encode(cmd types.Command) ([]byte, error) {
	if cmd == nil {
		return nil, fmt.Errorf("codec: encode: nil command")
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("codec: encode %T: %w", cmd, err)
	}
	return data, nil
}

// Decoder parses response bodies. It is safe for concurrent use.
type Decoder struct {
	schemas *schema.Registry
	policy  types.InfoPolicy
}

// NewDecoder returns a Decoder applying policy to step info keys.
func NewDecoder(policy types.InfoPolicy) (*Decoder, error) {
	policy, err := types.ParseInfoPolicy(string(policy))
	if err != nil {
		return nil, fmt.Errorf("codec: %w", err)
	}
	reg, err := schema.Default()
	if err != nil {
		return nil, err
	}
	return &Decoder{schemas: reg, policy: policy}, nil
}

// Policy returns the step info policy in effect.
func (d *Decoder) Policy() types.InfoPolicy { return d.policy }

// decode validates body against name and unmarshals it into a fresh T.
// Nothing is returned unless both passes succeed.
func decode[T any](d *Decoder, name schema.Name, body []byte) (*T, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, types.ErrEmptyBody
	}
	if err := d.schemas.Validate(name, body); err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("codec: decode %T: %w", v, err)
	}
	return &v, nil
}

func (d *Decoder) SessionCreated(body []byte) (*types.SessionCreated, error) {
	return decode[types.SessionCreated](d, schema.SessionCreated, body)
}

func (d *Decoder) EnvironmentList(body []byte) (*types.EnvironmentList, error) {
	return decode[types.EnvironmentList](d, schema.EnvironmentList, body)
}

func (d *Decoder) Observation(body []byte) (*types.Observation, error) {
	return decode[types.Observation](d, schema.Observation, body)
}

// StepOutcome decodes a step result. Under InfoStrict the info object and
// every recognized key must be present.
func (d *Decoder) StepOutcome(body []byte) (*types.StepOutcome, error) {
	name := schema.StepStrict
	if d.policy == types.InfoOptional {
		name = schema.StepOptional
	}
	return decode[types.StepOutcome](d, name, body)
}

func (d *Decoder) Membership(body []byte) (*types.Membership, error) {
	return decode[types.Membership](d, schema.Membership, body)
}

func (d *Decoder) ActionSample(body []byte) (*types.ActionSample, error) {
	return decode[types.ActionSample](d, schema.ActionSample, body)
}

func (d *Decoder) ObservationSpace(body []byte) (*types.ObservationSpaceInfo, error) {
	return decode[types.ObservationSpaceInfo](d, schema.ObservationSpace, body)
}

func (d *Decoder) ActionSpace(body []byte) (*types.ActionSpaceInfo, error) {
	return decode[types.ActionSpaceInfo](d, schema.ActionSpace, body)
}
