package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel  string        `json:"log_level" yaml:"log_level"`
	LogFormat string        `json:"log_format" yaml:"log_format"`
	Capture   CaptureConfig `json:"capture" yaml:"capture"`
	Serving   ServingConfig `json:"serving" yaml:"serving"`
	Sync      SyncConfig    `json:"sync" yaml:"sync"`
	Bus       BusConfig     `json:"bus" yaml:"bus"`
	Decoys    DecoysConfig  `json:"decoys" yaml:"decoys"`
	Enrich    EnrichConfig  `json:"enrich" yaml:"enrich"`
	Ops       OpsConfig     `json:"ops" yaml:"ops"`
}

type CaptureConfig struct {
	DSN         string `json:"dsn" yaml:"dsn"`
	FallbackDir string `json:"fallback_dir" yaml:"fallback_dir"`
	RingLimit   int    `json:"ring_limit" yaml:"ring_limit"`
}

type ServingConfig struct {
	Driver string `json:"driver" yaml:"driver"`
	DSN    string `json:"dsn" yaml:"dsn"`
}

type SyncConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	Interval time.Duration `json:"interval" yaml:"interval"`
}

type BusConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
}

type DecoysConfig struct {
	ReadTimeout time.Duration      `json:"read_timeout" yaml:"read_timeout"`
	SSH         SSHDecoyConfig     `json:"ssh" yaml:"ssh"`
	FTP         FTPDecoyConfig     `json:"ftp" yaml:"ftp"`
	HTTP        HTTPDecoyConfig    `json:"http" yaml:"http"`
	MySQL       MySQLDecoyConfig   `json:"mysql" yaml:"mysql"`
	RDP         RDPDecoyConfig     `json:"rdp" yaml:"rdp"`
	Prompt      []PromptDecoyConfig `json:"prompt" yaml:"prompt"`
}

type SSHDecoyConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
	Version string `json:"version" yaml:"version"`
}

type FTPDecoyConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	Addr        string `json:"addr" yaml:"addr"`
	Banner      string `json:"banner" yaml:"banner"`
	AlwaysGrant bool   `json:"always_grant" yaml:"always_grant"`
}

type HTTPDecoyConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	Addr         string `json:"addr" yaml:"addr"`
	ServerHeader string `json:"server_header" yaml:"server_header"`
}

type MySQLDecoyConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	Addr          string `json:"addr" yaml:"addr"`
	ServerVersion string `json:"server_version" yaml:"server_version"`
}

type RDPDecoyConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

// PromptDecoyConfig describes one generic line-oriented decoy bound to an
// operator-chosen high port.
type PromptDecoyConfig struct {
	Name    string `json:"name" yaml:"name"`
	Addr    string `json:"addr" yaml:"addr"`
	Service string `json:"service" yaml:"service"`
	Banner  string `json:"banner" yaml:"banner"`
}

type EnrichConfig struct {
	Enabled bool                `json:"enabled" yaml:"enabled"`
	Input   EnrichInputConfig   `json:"input" yaml:"input"`
	Output  EnrichOutputConfig  `json:"output" yaml:"output"`
	GeoIP   GeoIPConfig         `json:"geoip" yaml:"geoip"`
	Threat  ThreatConfig        `json:"threat" yaml:"threat"`
}

type EnrichInputConfig struct {
	Mode  string            `json:"mode" yaml:"mode"` // stdin|kafka|redis
	Kafka KafkaSourceConfig `json:"kafka" yaml:"kafka"`
	Redis RedisSourceConfig `json:"redis" yaml:"redis"`
}

type EnrichOutputConfig struct {
	Mode  string            `json:"mode" yaml:"mode"` // stdout|file|kafka
	Path  string            `json:"path" yaml:"path"`
	Kafka KafkaSourceConfig `json:"kafka" yaml:"kafka"`
}

type KafkaSourceConfig struct {
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type RedisSourceConfig struct {
	Addr         string        `json:"addr" yaml:"addr"`
	Password     string        `json:"password" yaml:"password"`
	DB           int           `json:"db" yaml:"db"`
	Key          string        `json:"key" yaml:"key"`
	BlockTimeout time.Duration `json:"block_timeout" yaml:"block_timeout"`
}

type GeoIPConfig struct {
	APIURL  string        `json:"api_url" yaml:"api_url"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

type ThreatConfig struct {
	AbuseIPDBKey      string        `json:"abuseipdb_key" yaml:"abuseipdb_key"`
	VirusTotalKey     string        `json:"virustotal_key" yaml:"virustotal_key"`
	Timeout           time.Duration `json:"timeout" yaml:"timeout"`
	CacheTTL          time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
	MaliciousPrefixes []string      `json:"malicious_prefixes" yaml:"malicious_prefixes"`
	HighRiskCountries []string      `json:"high_risk_countries" yaml:"high_risk_countries"`
	TrustedProviders  []string      `json:"trusted_providers" yaml:"trusted_providers"`
}

type OpsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Capture: CaptureConfig{
			DSN:         "file:honeypot-captures.db?_pragma=busy_timeout(5000)",
			FallbackDir: ".",
			RingLimit:   1000,
		},
		Serving: ServingConfig{
			Driver: "sqlite",
			DSN:    "file:honeypot.db?_pragma=busy_timeout(5000)",
		},
		Sync: SyncConfig{Enabled: true, Interval: 5 * time.Second},
		Bus:  BusConfig{Enabled: false, Topic: "hivetrap.events"},
		Decoys: DecoysConfig{
			ReadTimeout: 10 * time.Second,
			SSH:         SSHDecoyConfig{Enabled: true, Addr: ":2222", Version: "SSH-2.0-OpenSSH_8.2p1 Ubuntu-4ubuntu0.5"},
			FTP:         FTPDecoyConfig{Enabled: true, Addr: ":21", Banner: "Welcome to Corporate FTP Server", AlwaysGrant: true},
			HTTP:        HTTPDecoyConfig{Enabled: true, Addr: ":80", ServerHeader: "Apache/2.4.41 (Ubuntu)"},
			MySQL:       MySQLDecoyConfig{Enabled: true, Addr: ":3306", ServerVersion: "8.0.25"},
			RDP:         RDPDecoyConfig{Enabled: true, Addr: ":3389"},
		},
		Enrich: EnrichConfig{
			Enabled: false,
			Input:   EnrichInputConfig{Mode: "stdin", Redis: RedisSourceConfig{Addr: "127.0.0.1:6379", Key: "hivetrap_events", BlockTimeout: 5 * time.Second}},
			Output:  EnrichOutputConfig{Mode: "stdout"},
			GeoIP:   GeoIPConfig{APIURL: "http://ipapi.co", Timeout: 5 * time.Second},
			Threat: ThreatConfig{
				Timeout:  10 * time.Second,
				CacheTTL: time.Hour,
				MaliciousPrefixes: []string{
					"185.165.190.", "45.95.147.", "91.218.114.", "80.94.92.",
					"192.241.200.", "45.142.214.", "185.220.101.", "45.137.21.",
					"5.188.206.", "193.142.146.", "194.87.139.", "195.2.76.",
				},
				HighRiskCountries: []string{"RU", "CN", "KP", "IR", "SY", "BY", "CU", "SD"},
				TrustedProviders:  []string{"google", "cloudflare", "amazon", "microsoft", "azure"},
			},
		},
		Ops: OpsConfig{Enabled: true, Addr: ":9100"},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	applyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Capture.DSN == "" {
		cfg.Capture.DSN = "file:honeypot-captures.db?_pragma=busy_timeout(5000)"
	}
	if cfg.Capture.FallbackDir == "" {
		cfg.Capture.FallbackDir = "."
	}
	if cfg.Capture.RingLimit <= 0 {
		cfg.Capture.RingLimit = 1000
	}
	if cfg.Serving.Driver == "" {
		cfg.Serving.Driver = "sqlite"
	}
	if cfg.Sync.Interval <= 0 {
		cfg.Sync.Interval = 5 * time.Second
	}
	if cfg.Decoys.ReadTimeout <= 0 {
		cfg.Decoys.ReadTimeout = 10 * time.Second
	}
	if cfg.Enrich.Input.Mode == "" {
		cfg.Enrich.Input.Mode = "stdin"
	}
	if cfg.Enrich.Output.Mode == "" {
		cfg.Enrich.Output.Mode = "stdout"
	}
	if cfg.Enrich.Input.Redis.BlockTimeout <= 0 {
		cfg.Enrich.Input.Redis.BlockTimeout = 5 * time.Second
	}
	if cfg.Enrich.GeoIP.Timeout <= 0 {
		cfg.Enrich.GeoIP.Timeout = 5 * time.Second
	}
	if cfg.Enrich.Threat.Timeout <= 0 {
		cfg.Enrich.Threat.Timeout = 10 * time.Second
	}
	if cfg.Enrich.Threat.CacheTTL <= 0 {
		cfg.Enrich.Threat.CacheTTL = time.Hour
	}
}

// applyEnv overrides secrets and connection targets so they can stay out of
// the config file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("HIVETRAP_CAPTURE_DSN"); v != "" {
		cfg.Capture.DSN = v
	}
	if v := os.Getenv("HIVETRAP_SERVING_DSN"); v != "" {
		cfg.Serving.DSN = v
	}
	if v := os.Getenv("HIVETRAP_SYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Sync.Interval = d
		}
	}
	if v := os.Getenv("HIVETRAP_THREAT_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Enrich.Threat.CacheTTL = d
		}
	}
	for _, o := range []struct {
		env  string
		addr *string
	}{
		{"HIVETRAP_SSH_ADDR", &cfg.Decoys.SSH.Addr},
		{"HIVETRAP_FTP_ADDR", &cfg.Decoys.FTP.Addr},
		{"HIVETRAP_HTTP_ADDR", &cfg.Decoys.HTTP.Addr},
		{"HIVETRAP_MYSQL_ADDR", &cfg.Decoys.MySQL.Addr},
		{"HIVETRAP_RDP_ADDR", &cfg.Decoys.RDP.Addr},
	} {
		if v := os.Getenv(o.env); v != "" {
			*o.addr = v
		}
	}
	if v := os.Getenv("ABUSEIPDB_API_KEY"); v != "" {
		cfg.Enrich.Threat.AbuseIPDBKey = v
	}
	if v := os.Getenv("VIRUSTOTAL_API_KEY"); v != "" {
		cfg.Enrich.Threat.VirusTotalKey = v
	}
}

func Validate(cfg *Config) error {
	if cfg.Capture.DSN == "" {
		return errors.New("capture.dsn is required")
	}
	switch strings.ToLower(cfg.Serving.Driver) {
	case "sqlite", "postgres", "postgresql":
	default:
		return fmt.Errorf("serving.driver %q is not supported", cfg.Serving.Driver)
	}
	if cfg.Sync.Enabled && cfg.Serving.DSN == "" {
		return errors.New("serving.dsn required when sync.enabled is true")
	}
	if cfg.Bus.Enabled && (len(cfg.Bus.Brokers) == 0 || cfg.Bus.Topic == "") {
		return errors.New("bus requires brokers and topic when enabled")
	}
	for _, d := range []struct {
		enabled bool
		addr    string
		name    string
	}{
		{cfg.Decoys.SSH.Enabled, cfg.Decoys.SSH.Addr, "ssh"},
		{cfg.Decoys.FTP.Enabled, cfg.Decoys.FTP.Addr, "ftp"},
		{cfg.Decoys.HTTP.Enabled, cfg.Decoys.HTTP.Addr, "http"},
		{cfg.Decoys.MySQL.Enabled, cfg.Decoys.MySQL.Addr, "mysql"},
		{cfg.Decoys.RDP.Enabled, cfg.Decoys.RDP.Addr, "rdp"},
	} {
		if d.enabled && d.addr == "" {
			return fmt.Errorf("decoys.%s.addr required when decoys.%s.enabled is true", d.name, d.name)
		}
	}
	for i, p := range cfg.Decoys.Prompt {
		if p.Addr == "" {
			return fmt.Errorf("decoys.prompt[%d].addr is required", i)
		}
	}
	if cfg.Enrich.Enabled {
		switch cfg.Enrich.Input.Mode {
		case "stdin":
		case "kafka":
			if len(cfg.Enrich.Input.Kafka.Brokers) == 0 || cfg.Enrich.Input.Kafka.Topic == "" {
				return errors.New("enrich.input.kafka requires brokers and topic")
			}
		case "redis":
			if cfg.Enrich.Input.Redis.Key == "" {
				return errors.New("enrich.input.redis.key is required")
			}
		default:
			return fmt.Errorf("enrich.input.mode %q is not supported", cfg.Enrich.Input.Mode)
		}
		switch cfg.Enrich.Output.Mode {
		case "stdout":
		case "file":
			if cfg.Enrich.Output.Path == "" {
				return errors.New("enrich.output.path required for file output")
			}
		case "kafka":
			if len(cfg.Enrich.Output.Kafka.Brokers) == 0 || cfg.Enrich.Output.Kafka.Topic == "" {
				return errors.New("enrich.output.kafka requires brokers and topic")
			}
		default:
			return fmt.Errorf("enrich.output.mode %q is not supported", cfg.Enrich.Output.Mode)
		}
	}
	if cfg.Ops.Enabled && cfg.Ops.Addr == "" {
		return errors.New("ops.addr required when ops.enabled is true")
	}
	return nil
}

type Manager struct {
	path string
	cfg  atomic.Value
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	return m, nil
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	return cfg, nil
}
