package gym

import (
	"net/url"

	"github.com/gym-http/gymclient/pkg/types"
)

const (
	envsPath     = "/v1/envs/"
	shutdownPath = "/v1/shutdown/"
)

// instancePath builds /v1/envs/{id}/{suffix}. The handle is escaped but not
// otherwise checked; the server decides what a stale handle means.
func instancePath(id types.InstanceID, suffix string) string {
	return envsPath + url.PathEscape(string(id)) + "/" + suffix
}
