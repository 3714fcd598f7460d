package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gsoultan/mqttpulse"
)

func TestSubstituteEnvVars(t *testing.T) {
	os.Setenv("MQTTPULSE_TEST_HOST", "broker.example.com")
	defer os.Unsetenv("MQTTPULSE_TEST_HOST")

	out := SubstituteEnvVars("host: ${MQTTPULSE_TEST_HOST}\nport: ${MQTTPULSE_TEST_PORT:-1883}")
	require.Equal(t, "host: broker.example.com\nport: 1883", out)
}

func TestLoadValidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
pool:
  name: edge
  min_connections: 1
  max_connections: 4
  connect_timeout_seconds: 5
client:
  host: ${TEST_BROKER_HOST:-localhost}
  port: 1883
topics:
  - topic: sensors/+/temp
    qos: 1
  - topic: work/jobs
    qos: 1
    enable_multi_sub: true
    multi_sub: 3
tap:
  socket_path: /tmp/mqttpulse.sock
shell:
  history_file: "~/.mqttpulse_history"
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	poolCfg, clientCfg, topics, tapCfg, shellCfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "edge", poolCfg.Name)
	require.Equal(t, 4, poolCfg.MaxConnections)
	require.Equal(t, "localhost", clientCfg.Host)
	require.Len(t, topics, 2)
	require.True(t, topics[1].EnableMultiSub)
	require.Equal(t, "/tmp/mqttpulse.sock", tapCfg.SocketPath)
	require.NotContains(t, shellCfg.HistoryFile, "~")
}

func TestValidateRejectsMissingPoolName(t *testing.T) {
	_, _, _, _, _, err := Validate(FileConfig{
		Client: ClientFileConfig{Host: "localhost", Port: 1883},
		Pool:   PoolFileConfig{MaxConnections: 1},
	})
	require.Error(t, err)
	var cfgErr *mqttpulse.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestValidateRejectsSharedWithoutGroup(t *testing.T) {
	_, _, _, _, _, err := Validate(FileConfig{
		Pool:   PoolFileConfig{Name: "p", MaxConnections: 1},
		Client: ClientFileConfig{Host: "localhost", Port: 1883},
		Topics: []TopicFileConfig{{Topic: "a/b", EnableShared: true}},
	})
	require.Error(t, err)
}
