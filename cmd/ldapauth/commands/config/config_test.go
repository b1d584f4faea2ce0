package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/config"
)

func TestWarnings(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.SASL.Mechanisms = []string{"PLAIN", "EXTERNAL"}

	warnings := Warnings(cfg)
	assert.Contains(t, warnings, "No entries file configured - every bind will fail")
	assert.Contains(t, warnings, "PLAIN is enabled without TLS - passwords cross the network in clear text")
	assert.Contains(t, warnings, "EXTERNAL is enabled without TLS - it can never succeed")

	cfg.Directory.EntriesFile = "entries.yaml"
	cfg.TLS.CertFile = "server.crt"
	cfg.TLS.KeyFile = "server.key"
	assert.Empty(t, Warnings(cfg))

	cfg.PassThrough.Enabled = true
	cfg.PassThrough.TrustAll = true
	assert.Len(t, Warnings(cfg), 2)
}

func TestSchema(t *testing.T) {
	data, err := Schema()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "ldapauth Configuration", doc["title"])

	props, ok := doc["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "passthrough")
	assert.Contains(t, props, "sasl")
	assert.Contains(t, props, "logging")
}
