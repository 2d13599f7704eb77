package types

// EnvironmentSpec names a class of simulated environment, such as "CartPole-v0".
type EnvironmentSpec string

// InstanceID is the server-issued handle of one running environment instance.
type InstanceID string

// Command is a request payload sent to the Gym server. The set is closed:
// only the types in this file implement it.
type Command interface {
	command()
}

// CreateEnvironmentCommand is the body of POST /v1/envs/.
type CreateEnvironmentCommand struct {
	EnvID EnvironmentSpec `json:"env_id"`
}

// StartMonitorCommand is the body of POST /v1/envs/{id}/monitor/start/.
type StartMonitorCommand struct {
	Directory     string `json:"directory"`
	Force         bool   `json:"force"`
	Resume        bool   `json:"resume"`
	VideoCallable bool   `json:"video_callable"`
}

// StepCommand is the body of POST /v1/envs/{id}/step/.
type StepCommand struct {
	Action int  `json:"action"`
	Render bool `json:"render"`
}

// ObservationQuery is the free-form description posted to
// /v1/envs/{id}/observation_space/contains, e.g. {"name": "Box"}.
type ObservationQuery map[string]string

func (CreateEnvironmentCommand) command() {}
func (StartMonitorCommand) command()      {}
func (StepCommand) command()              {}
func (ObservationQuery) command()         {}
