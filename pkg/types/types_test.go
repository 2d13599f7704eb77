package types_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/segmentio/encoding/json"

	"github.com/gym-http/gymclient/pkg/types"
)

func TestFrame_UnmarshalNested(t *testing.T) {
	var f types.Frame
	if err := json.Unmarshal([]byte(`[[[0,128,255],[1,2,3]]]`), &f); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	h, w, c := f.Shape()
	if h != 1 || w != 2 || c != 3 {
		t.Errorf("Shape: got (%d, %d, %d), want (1, 2, 3)", h, w, c)
	}
	if f[0][0][2] != 255 {
		t.Errorf("f[0][0][2]: got %d, want 255", f[0][0][2])
	}
}

func TestFrame_RejectsOutOfRange(t *testing.T) {
	var f types.Frame
	if err := json.Unmarshal([]byte(`[[[256]]]`), &f); err == nil {
		t.Fatal("expected error for value 256, got nil")
	}
	if err := json.Unmarshal([]byte(`[[[-1]]]`), &f); err == nil {
		t.Fatal("expected error for value -1, got nil")
	}
}

func TestFrame_RejectsRaggedDepth(t *testing.T) {
	var f types.Frame
	if err := json.Unmarshal([]byte(`[[[0]],[0]]`), &f); err == nil {
		t.Fatal("expected error for ragged frame, got nil")
	}
	if f != nil {
		t.Errorf("frame mutated on failure: %v", f)
	}
}

func TestFrame_MarshalAsArrays(t *testing.T) {
	f := types.Frame{{{7, 8}}}
	data, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `[[[7,8]]]` {
		t.Errorf("marshal: got %s, want [[[7,8]]]", data)
	}
}

func TestStepOutcome_InfoIgnoresUnknownKeys(t *testing.T) {
	payload := `{"observation":[[[0]]],"reward":1.5,"done":true,"info":{"ale.lives":2,"episode_frame_number":40}}`
	var out types.StepOutcome
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if out.Info.Lives == nil || *out.Info.Lives != 2 {
		t.Errorf("Lives: got %v, want 2", out.Info.Lives)
	}
	if out.Reward != 1.5 || !out.Done {
		t.Errorf("got reward=%v done=%v, want 1.5 true", out.Reward, out.Done)
	}
}

func fields(t *testing.T, payload string) map[string]json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		t.Fatalf("unmarshal fields: %v", err)
	}
	return m
}

func TestClassifySpace(t *testing.T) {
	cases := []struct {
		payload string
		want    types.SpaceKind
		wantErr bool
	}{
		{`{"name":"Box","shape":[4],"low":[-1,-1,-1,-1],"high":[1,1,1,1]}`, types.SpaceBox, false},
		{`{"name":"HighLow","num_rows":2,"matrix":[0,1,0,1]}`, types.SpaceTabular, false},
		{`{"name":"Discrete","n":2}`, "", true},
		{`{"shape":[4],"low":[0]}`, "", true},
		{`{"shape":[1],"low":[0],"high":[1],"num_rows":1,"matrix":[0]}`, "", true},
		{`{"shape":null,"low":null,"high":null,"num_rows":1,"matrix":[0]}`, types.SpaceTabular, false},
	}
	for _, tc := range cases {
		got, err := types.ClassifySpace(fields(t, tc.payload))
		if tc.wantErr {
			if err == nil {
				t.Errorf("ClassifySpace(%s): expected error, got %q", tc.payload, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ClassifySpace(%s): unexpected error: %v", tc.payload, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ClassifySpace(%s): got %q, want %q", tc.payload, got, tc.want)
		}
	}
}

func TestObservationSpace_UnmarshalBox(t *testing.T) {
	var info types.ObservationSpaceInfo
	payload := `{"info":{"name":"Box","shape":[210,160,3],"low":[0],"high":[255]}}`
	if err := json.Unmarshal([]byte(payload), &info); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if info.Info.Kind != types.SpaceBox || info.Info.Box == nil || info.Info.Tabular != nil {
		t.Fatalf("got %+v, want box variant only", info.Info)
	}
	if info.Info.Name != "Box" {
		t.Errorf("Name: got %q, want Box", info.Info.Name)
	}
	if len(info.Info.Box.Shape) != 3 || info.Info.Box.Shape[2] != 3 {
		t.Errorf("Shape: got %v, want [210 160 3]", info.Info.Box.Shape)
	}
}

func TestObservationSpace_MarshalRoundTripsVariant(t *testing.T) {
	original := types.ObservationSpace{
		Kind:    types.SpaceTabular,
		Name:    "HighLow",
		Tabular: &types.TabularSpace{NumRows: 1, Matrix: []float64{0, 1}},
	}
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var restored types.ObservationSpace
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if restored.Kind != types.SpaceTabular || restored.Tabular.NumRows != 1 {
		t.Errorf("restored: got %+v, want tabular with 1 row", restored)
	}
}

func TestObservationSpace_MarshalWithoutVariantFails(t *testing.T) {
	if _, err := json.Marshal(types.ObservationSpace{Kind: types.SpaceBox}); err == nil {
		t.Fatal("expected error for box kind without Box, got nil")
	}
}

func TestDiscreteSpace_String(t *testing.T) {
	s := types.DiscreteSpace{Name: "Discrete", N: 6}
	if got := s.String(); got != "ActionSpace: Discrete, n: 6" {
		t.Errorf("String: got %q", got)
	}
}

func TestParseInfoPolicy(t *testing.T) {
	for in, want := range map[string]types.InfoPolicy{
		"":         types.InfoStrict,
		"strict":   types.InfoStrict,
		"optional": types.InfoOptional,
	} {
		got, err := types.ParseInfoPolicy(in)
		if err != nil {
			t.Errorf("ParseInfoPolicy(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseInfoPolicy(%q): got %q, want %q", in, got, want)
		}
	}
	if _, err := types.ParseInfoPolicy("lenient"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestError_IsMatchesKind(t *testing.T) {
	err := fmt.Errorf("gym: step: %w", types.NewStatusError("POST", "http://x/v1/envs/a/step/", 500))

	if !errors.Is(err, types.ErrTransport) {
		t.Error("expected errors.Is(err, ErrTransport)")
	}
	if !errors.Is(err, types.ErrBadServerResponse) {
		t.Error("expected errors.Is(err, ErrBadServerResponse)")
	}
	if errors.Is(err, types.ErrDecode) {
		t.Error("status error must not match ErrDecode")
	}
	if got := types.StatusCode(err); got != 500 {
		t.Errorf("StatusCode: got %d, want 500", got)
	}
}

func TestError_NetworkFailureHasNoStatus(t *testing.T) {
	err := &types.Error{Kind: types.KindTransport, Method: "GET", URL: "http://x", Err: errors.New("connection refused")}
	if errors.Is(err, types.ErrBadServerResponse) {
		t.Error("network failure must not match ErrBadServerResponse")
	}
	if types.StatusCode(err) != 0 {
		t.Errorf("StatusCode: got %d, want 0", types.StatusCode(err))
	}
	if got := err.Error(); got != "transport: GET http://x: connection refused" {
		t.Errorf("Error: got %q", got)
	}
}

func TestError_EmptyBodyIsDistinctFromDecode(t *testing.T) {
	err := &types.Error{Kind: types.KindEmptyBody, Err: types.ErrEmptyBody}
	if !errors.Is(err, types.ErrEmptyBody) {
		t.Error("expected errors.Is(err, ErrEmptyBody)")
	}
	if errors.Is(err, types.ErrDecode) {
		t.Error("empty body must not match ErrDecode")
	}
}
