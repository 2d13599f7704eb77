package types

import (
	"fmt"

	"github.com/segmentio/encoding/json"
)

// InfoKeyLives is the step info key carrying the remaining lives of an
// Atari (ALE) environment.
const InfoKeyLives = "ale.lives"

// RecognizedInfoKeys lists the step info keys the client extracts. Every other
// key in the info object is ignored.
var RecognizedInfoKeys = []string{InfoKeyLives}

// InfoPolicy selects how strictly step info keys are required.
type InfoPolicy string

const (
	// InfoStrict fails decoding when the info object or any recognized key is missing.
	InfoStrict InfoPolicy = "strict"
	// InfoOptional decodes recognized keys when present and leaves them unset otherwise.
	InfoOptional InfoPolicy = "optional"
)

// ParseInfoPolicy maps a configuration string to an InfoPolicy.
func ParseInfoPolicy(s string) (InfoPolicy, error) {
	switch InfoPolicy(s) {
	case InfoStrict, "":
		return InfoStrict, nil
	case InfoOptional:
		return InfoOptional, nil
	}
	return "", fmt.Errorf("unknown info policy %q (want %q or %q)", s, InfoStrict, InfoOptional)
}

// SessionCreated is returned when an environment instance is created.
type SessionCreated struct {
	InstanceID InstanceID `json:"instance_id"`
}

// EnvironmentList maps every live instance to the environment it was made from.
type EnvironmentList struct {
	Instances map[InstanceID]EnvironmentSpec `json:"all_envs"`
}

// Observation is returned by reset.
type Observation struct {
	Observation Frame `json:"observation"`
}

// StepOutcome is the result of one environment transition.
type StepOutcome struct {
	Observation Frame   `json:"observation"`
	Reward      float64 `json:"reward"`
	Done        bool    `json:"done"`
	Info        Info    `json:"info"`
}

// Info holds the recognized keys of a step's info object.
type Info struct {
	Lives *int `json:"ale.lives,omitempty"`
}

// Membership answers a contains query.
type Membership struct {
	Member bool `json:"member"`
}

// ActionSample is an action drawn at random from the action space.
type ActionSample struct {
	Action int `json:"action"`
}

// Frame is a pixel observation indexed as height x width x channel.
type Frame [][][]uint8

// Shape reports the frame dimensions, read from the first row and pixel.
func (f Frame) Shape() (height, width, channels int) {
	height = len(f)
	if height > 0 {
		width = len(f[0])
		if width > 0 {
			channels = len(f[0][0])
		}
	}
	return height, width, channels
}

// UnmarshalJSON decodes a nested array of integers in 0..255. Byte slices are
// not read as base64 strings here.
func (f *Frame) UnmarshalJSON(data []byte) error {
	var raw [][][]int
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("frame: %w", err)
	}
	out := make(Frame, len(raw))
	for i, row := range raw {
		out[i] = make([][]uint8, len(row))
		for j, px := range row {
			out[i][j] = make([]uint8, len(px))
			for k, v := range px {
				if v < 0 || v > 255 {
					return fmt.Errorf("frame: value %d at [%d][%d][%d] out of range 0..255", v, i, j, k)
				}
				out[i][j][k] = uint8(v)
			}
		}
	}
	*f = out
	return nil
}

// MarshalJSON writes the frame as nested integer arrays.
func (f Frame) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("null"), nil
	}
	raw := make([][][]int, len(f))
	for i, row := range f {
		raw[i] = make([][]int, len(row))
		for j, px := range row {
			raw[i][j] = make([]int, len(px))
			for k, v := range px {
				raw[i][j][k] = int(v)
			}
		}
	}
	return json.Marshal(raw)
}
