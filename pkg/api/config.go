package api

import (
	"time"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/config"
)

// APIConfig configures the admin HTTP server.
//
// The admin server is only started when admin.enabled is set; it binds to
// loopback by default since it exposes pass-through server addresses.
type APIConfig struct {
	// BindAddress is the interface to listen on.
	// Default: 127.0.0.1
	BindAddress string

	// Port is the HTTP port. 0 picks an ephemeral port.
	Port int

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 10s
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of the response.
	// Default: 10s
	WriteTimeout time.Duration

	// IdleTimeout is the keep-alive idle limit.
	// Default: 60s
	IdleTimeout time.Duration
}

// FromConfig converts the admin section of the configuration file.
func FromConfig(cfg config.AdminConfig) APIConfig {
	return APIConfig{
		BindAddress:  cfg.BindAddress,
		Port:         cfg.Port,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}

// applyDefaults fills in zero values with sensible defaults.
func (c *APIConfig) applyDefaults() {
	if c.BindAddress == "" {
		c.BindAddress = "127.0.0.1"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
}
