// Package config loads and validates mqttpulse's YAML/JSON configuration
// file (spec.md §4.11 / §6): read the file, substitute ${VAR}/${VAR:-def}
// environment references, try YAML then JSON, and validate into the
// typed mqttpulse.PoolConfig/ClientConfig/TopicConfig records the pool
// and autowire packages consume.
//
// Grounded on the teacher's internal/config.LoadConfig: read-file,
// substitute-env, yaml-then-json-fallback, same regex-based substitution.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gsoultan/mqttpulse"
)

// TopicFileConfig is the on-disk shape of one declarative subscription;
// durations/QoS are plain ints so a bare YAML/JSON scanner (no custom
// UnmarshalYAML) can decode the file directly, matching the teacher's
// EngineConfig fields.
type TopicFileConfig struct {
	Topic          string `yaml:"topic" json:"topic"`
	QoS            byte   `yaml:"qos" json:"qos"`
	EnableShared   bool   `yaml:"enable_shared" json:"enable_shared"`
	GroupName      string `yaml:"group_name" json:"group_name"`
	EnableQueue    bool   `yaml:"enable_queue" json:"enable_queue"`
	EnableMultiSub bool   `yaml:"enable_multi_sub" json:"enable_multi_sub"`
	MultiSub       int    `yaml:"multi_sub" json:"multi_sub"`
}

type PoolFileConfig struct {
	Name                    string `yaml:"name" json:"name"`
	MinConnections          int    `yaml:"min_connections" json:"min_connections"`
	MaxConnections          int    `yaml:"max_connections" json:"max_connections"`
	MaxIdleTimeSeconds      int    `yaml:"max_idle_time_seconds" json:"max_idle_time_seconds"`
	ConnectTimeoutSeconds   int    `yaml:"connect_timeout_seconds" json:"connect_timeout_seconds"`
	HeartbeatIntervalSeconds int   `yaml:"heartbeat_interval_seconds" json:"heartbeat_interval_seconds"`
}

type ClientFileConfig struct {
	Host              string `yaml:"host" json:"host"`
	Port              int    `yaml:"port" json:"port"`
	ClientIDPrefix    string `yaml:"client_id_prefix" json:"client_id_prefix"`
	KeepAliveSeconds  int    `yaml:"keep_alive_seconds" json:"keep_alive_seconds"`
	Username          string `yaml:"username" json:"username"`
	Password          string `yaml:"password" json:"password"`
	ProtocolLevel     int    `yaml:"protocol_level" json:"protocol_level"`
}

type TapFileConfig struct {
	SocketPath        string `yaml:"socket_path" json:"socket_path"`
	ChannelBufferSize int    `yaml:"channel_buffer_size" json:"channel_buffer_size"`
}

type ShellFileConfig struct {
	TapAddress      string `yaml:"tap_address" json:"tap_address"`
	HistoryFile     string `yaml:"history_file" json:"history_file"`
	Format          string `yaml:"format" json:"format"`
	MetricsAddr     string `yaml:"metrics_addr" json:"metrics_addr"`
}

// FileConfig is the full on-disk document.
type FileConfig struct {
	Pool   PoolFileConfig    `yaml:"pool" json:"pool"`
	Client ClientFileConfig  `yaml:"client" json:"client"`
	Topics []TopicFileConfig `yaml:"topics" json:"topics"`
	Tap    TapFileConfig     `yaml:"tap" json:"tap"`
	Shell  ShellFileConfig   `yaml:"shell" json:"shell"`
}

// Load reads path, substitutes environment references, decodes as YAML
// (falling back to JSON), and validates into the typed config the rest
// of the module consumes.
func Load(path string) (mqttpulse.PoolConfig, mqttpulse.ClientConfig, []mqttpulse.TopicConfig, TapFileConfig, ShellFileConfig, error) {
	var zero mqttpulse.PoolConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return zero, mqttpulse.ClientConfig{}, nil, TapFileConfig{}, ShellFileConfig{}, fmt.Errorf("read config: %w", err)
	}

	content := SubstituteEnvVars(string(data))

	var fc FileConfig
	if err := yaml.Unmarshal([]byte(content), &fc); err != nil {
		if jerr := json.Unmarshal([]byte(content), &fc); jerr != nil {
			return zero, mqttpulse.ClientConfig{}, nil, TapFileConfig{}, ShellFileConfig{}, &mqttpulse.ConfigError{
				Msg: fmt.Sprintf("decode %s as YAML or JSON: %v / %v", path, err, jerr),
			}
		}
	}

	return Validate(fc)
}

// Validate converts fc into the typed records the pool/autowire/shell
// packages consume, returning the first failing rule as a *ConfigError.
func Validate(fc FileConfig) (mqttpulse.PoolConfig, mqttpulse.ClientConfig, []mqttpulse.TopicConfig, TapFileConfig, ShellFileConfig, error) {
	var zero mqttpulse.PoolConfig

	if fc.Pool.Name == "" {
		return zero, mqttpulse.ClientConfig{}, nil, fc.Tap, fc.Shell, &mqttpulse.ConfigError{Msg: "pool.name is required"}
	}
	if fc.Pool.MaxConnections <= 0 {
		return zero, mqttpulse.ClientConfig{}, nil, fc.Tap, fc.Shell, &mqttpulse.ConfigError{Msg: "pool.max_connections must be > 0"}
	}
	if fc.Pool.MinConnections < 0 || fc.Pool.MinConnections > fc.Pool.MaxConnections {
		return zero, mqttpulse.ClientConfig{}, nil, fc.Tap, fc.Shell, &mqttpulse.ConfigError{Msg: "pool.min_connections must be between 0 and max_connections"}
	}
	if fc.Client.Host == "" {
		return zero, mqttpulse.ClientConfig{}, nil, fc.Tap, fc.Shell, &mqttpulse.ConfigError{Msg: "client.host is required"}
	}
	if fc.Client.Port <= 0 {
		return zero, mqttpulse.ClientConfig{}, nil, fc.Tap, fc.Shell, &mqttpulse.ConfigError{Msg: "client.port must be > 0"}
	}
	for i, tc := range fc.Topics {
		if tc.Topic == "" {
			return zero, mqttpulse.ClientConfig{}, nil, fc.Tap, fc.Shell, &mqttpulse.ConfigError{Msg: fmt.Sprintf("topics[%d].topic is required", i)}
		}
		if tc.EnableShared && tc.GroupName == "" {
			return zero, mqttpulse.ClientConfig{}, nil, fc.Tap, fc.Shell, &mqttpulse.ConfigError{Msg: fmt.Sprintf("topics[%d].group_name is required when enable_shared is set", i)}
		}
		if tc.EnableMultiSub && tc.MultiSub <= 0 {
			return zero, mqttpulse.ClientConfig{}, nil, fc.Tap, fc.Shell, &mqttpulse.ConfigError{Msg: fmt.Sprintf("topics[%d].multi_sub must be > 0 when enable_multi_sub is set", i)}
		}
	}

	connectTimeout := time.Duration(fc.Pool.ConnectTimeoutSeconds) * time.Second
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	heartbeat := time.Duration(fc.Pool.HeartbeatIntervalSeconds) * time.Second
	maxIdle := time.Duration(fc.Pool.MaxIdleTimeSeconds) * time.Second

	poolCfg := mqttpulse.PoolConfig{
		Name:              fc.Pool.Name,
		MinConnections:    fc.Pool.MinConnections,
		MaxConnections:    fc.Pool.MaxConnections,
		MaxIdleTime:       maxIdle,
		ConnectTimeout:    connectTimeout,
		HeartbeatInterval: heartbeat,
	}

	keepAlive := time.Duration(fc.Client.KeepAliveSeconds) * time.Second
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	protocolLevel := fc.Client.ProtocolLevel
	if protocolLevel == 0 {
		protocolLevel = 5
	}
	prefix := fc.Client.ClientIDPrefix
	if prefix == "" {
		prefix = "mqttpulse-"
	}
	clientCfg := mqttpulse.ClientConfig{
		Host:             fc.Client.Host,
		Port:             fc.Client.Port,
		ClientIDProvider: mqttpulse.DefaultClientIDProvider(prefix),
		KeepAlive:        keepAlive,
		Username:         fc.Client.Username,
		Password:         fc.Client.Password,
		ProtocolLevel:    protocolLevel,
	}

	topics := make([]mqttpulse.TopicConfig, len(fc.Topics))
	for i, tc := range fc.Topics {
		topics[i] = mqttpulse.TopicConfig{
			Topic:          tc.Topic,
			QoS:            tc.QoS,
			EnableShared:   tc.EnableShared,
			GroupName:      tc.GroupName,
			EnableQueue:    tc.EnableQueue,
			EnableMultiSub: tc.EnableMultiSub,
			MultiSub:       tc.MultiSub,
		}
	}

	shell := fc.Shell
	if shell.HistoryFile != "" {
		expanded, err := expandHome(shell.HistoryFile)
		if err != nil {
			return zero, mqttpulse.ClientConfig{}, nil, fc.Tap, fc.Shell, &mqttpulse.ConfigError{Msg: err.Error()}
		}
		shell.HistoryFile = expanded
	}

	return poolCfg, clientCfg, topics, fc.Tap, shell, nil
}

// expandHome rewrites a leading "~" to the current user's home directory
// (POSIX only — Windows is not a target platform for this module).
func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand history file path: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

var envRegex = regexp.MustCompile(`\$\{(\w+)(?::-([^}]*))?\}`)

// SubstituteEnvVars replaces ${VAR} and ${VAR:-default} references with
// the named environment variable, or default when VAR is unset.
func SubstituteEnvVars(input string) string {
	return envRegex.ReplaceAllStringFunc(input, func(m string) string {
		matches := envRegex.FindStringSubmatch(m)
		if len(matches) < 2 {
			return m
		}
		envVar := matches[1]
		if val, ok := os.LookupEnv(envVar); ok {
			return val
		}
		if len(matches) > 2 && strings.Contains(m, ":-") {
			return matches[2]
		}
		return m
	})
}
