package apiclient

import (
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/api/handlers"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth/passthrough"
)

// Liveness is the /healthz payload.
type Liveness struct {
	Service string `json:"service"`
}

// Liveness checks that the server process is up.
func (c *Client) Liveness() (*Liveness, error) {
	var out Liveness
	if err := c.get("/healthz", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Readiness returns the listener, mechanism and pass-through summary. When
// the server is not ready the summary is returned with an *APIError.
func (c *Client) Readiness() (*handlers.ReadinessResponse, error) {
	var out handlers.ReadinessResponse
	err := c.get("/healthz/ready", &out)
	return &out, err
}

// PassThroughStatus returns the state of every remote pass-through server.
// Disabled pass-through is an *APIError with IsNotFound.
func (c *Client) PassThroughStatus() ([]passthrough.ServerStatus, error) {
	var out []passthrough.ServerStatus
	if err := c.get("/status/passthrough", &out); err != nil {
		return nil, err
	}
	return out, nil
}
