package types

import (
	"fmt"

	"github.com/segmentio/encoding/json"
)

// SpaceKind tags the variant held by a space description.
type SpaceKind string

const (
	SpaceBox      SpaceKind = "box"
	SpaceTabular  SpaceKind = "tabular"
	SpaceDiscrete SpaceKind = "discrete"
)

var (
	boxFields     = []string{"shape", "low", "high"}
	tabularFields = []string{"num_rows", "matrix"}
)

// BoxSpace is an n-dimensional box with per-dimension bounds.
type BoxSpace struct {
	Shape []int     `json:"shape"`
	Low   []float64 `json:"low"`
	High  []float64 `json:"high"`
}

// TabularSpace is a flattened value matrix ("HighLow" spaces).
type TabularSpace struct {
	NumRows int       `json:"num_rows"`
	Matrix  []float64 `json:"matrix"`
}

// ObservationSpace describes the observations of an environment. Exactly one
// of Box and Tabular is set, as indicated by Kind.
type ObservationSpace struct {
	Kind    SpaceKind
	Name    string
	Box     *BoxSpace
	Tabular *TabularSpace
}

// ObservationSpaceInfo is the payload of GET /v1/envs/{id}/observation_space/.
type ObservationSpaceInfo struct {
	Info ObservationSpace `json:"info"`
}

// DiscreteSpace is a space of n integer actions.
type DiscreteSpace struct {
	Name string `json:"name"`
	N    int    `json:"n"`
}

// ActionSpaceInfo is the payload of GET /v1/envs/{id}/action_space/.
type ActionSpaceInfo struct {
	Info DiscreteSpace `json:"info"`
}

// ClassifySpace selects the observation space variant from the set of fields
// present in the payload. A variant is chosen only when all of its fields are
// present and none of the other variant's fields are.
func ClassifySpace(fields map[string]json.RawMessage) (SpaceKind, error) {
	box := countPresent(fields, boxFields)
	tab := countPresent(fields, tabularFields)
	switch {
	case box == len(boxFields) && tab == 0:
		return SpaceBox, nil
	case tab == len(tabularFields) && box == 0:
		return SpaceTabular, nil
	case box > 0 && tab > 0:
		return "", fmt.Errorf("space has both box and tabular fields")
	default:
		return "", fmt.Errorf("space has neither complete box fields %v nor tabular fields %v", boxFields, tabularFields)
	}
}

func countPresent(fields map[string]json.RawMessage, names []string) int {
	n := 0
	for _, name := range names {
		if v, ok := fields[name]; ok && string(v) != "null" {
			n++
		}
	}
	return n
}

// UnmarshalJSON decodes the variant chosen by ClassifySpace.
func (s *ObservationSpace) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("observation space: %w", err)
	}
	kind, err := ClassifySpace(fields)
	if err != nil {
		return fmt.Errorf("observation space: %w", err)
	}

	out := ObservationSpace{Kind: kind}
	if raw, ok := fields["name"]; ok {
		if err := json.Unmarshal(raw, &out.Name); err != nil {
			return fmt.Errorf("observation space: name: %w", err)
		}
	}
	switch kind {
	case SpaceBox:
		var box BoxSpace
		if err := json.Unmarshal(data, &box); err != nil {
			return fmt.Errorf("observation space: box: %w", err)
		}
		out.Box = &box
	case SpaceTabular:
		var tab TabularSpace
		if err := json.Unmarshal(data, &tab); err != nil {
			return fmt.Errorf("observation space: tabular: %w", err)
		}
		out.Tabular = &tab
	}
	*s = out
	return nil
}

// MarshalJSON writes the flat wire form of the active variant.
func (s ObservationSpace) MarshalJSON() ([]byte, error) {
	switch {
	case s.Kind == SpaceBox && s.Box != nil:
		return json.Marshal(struct {
			Name  string    `json:"name,omitempty"`
			Shape []int     `json:"shape"`
			Low   []float64 `json:"low"`
			High  []float64 `json:"high"`
		}{s.Name, s.Box.Shape, s.Box.Low, s.Box.High})
	case s.Kind == SpaceTabular && s.Tabular != nil:
		return json.Marshal(struct {
			Name    string    `json:"name,omitempty"`
			NumRows int       `json:"num_rows"`
			Matrix  []float64 `json:"matrix"`
		}{s.Name, s.Tabular.NumRows, s.Tabular.Matrix})
	}
	return nil, fmt.Errorf("observation space: kind %q has no matching variant", s.Kind)
}

func (s ObservationSpace) String() string {
	switch {
	case s.Kind == SpaceBox && s.Box != nil:
		return fmt.Sprintf("ObservationSpace %s: shape %v low %v high %v", s.Name, s.Box.Shape, s.Box.Low, s.Box.High)
	case s.Kind == SpaceTabular && s.Tabular != nil:
		return fmt.Sprintf("ObservationSpace %s: rows %d matrix %v", s.Name, s.Tabular.NumRows, s.Tabular.Matrix)
	}
	return "ObservationSpace: unknown"
}

func (s DiscreteSpace) String() string {
	return fmt.Sprintf("ActionSpace: %s, n: %d", s.Name, s.N)
}
