package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/volstore/volstore/pkg/errors"
)

// Environment variable names read by LoadFromEnv.
const (
	EnvAccessKey      = "RUNPOD_S3_ACCESS_KEY_ID"
	EnvSecretKey      = "RUNPOD_S3_SECRET_ACCESS_KEY"
	EnvDatacenter     = "RUNPOD_DATACENTER"
	EnvVolumeID       = "RUNPOD_NETWORK_VOLUME_ID"
	EnvKeyPrefix      = "VOLSTORE_KEY_PREFIX"
	EnvRequestTimeout = "VOLSTORE_REQUEST_TIMEOUT"
	EnvMaxAttempts    = "AWS_MAX_ATTEMPTS"
	EnvRetryMode      = "AWS_RETRY_MODE"
	EnvDriver         = "VOLSTORE_DRIVER"
	EnvLogLevel       = "VOLSTORE_LOG_LEVEL"
	EnvLogFormat      = "VOLSTORE_LOG_FORMAT"
	EnvConfigFile     = "VOLSTORE_CONFIG"
	EnvVolumeDir      = "VOLSTORE_VOLUME_DIR"
	EnvContainerDir   = "VOLSTORE_CONTAINER_DIR"
	EnvWorkspaceDir   = "VOLSTORE_WORKSPACE_DIR"
	EnvWriteBack      = "VOLSTORE_WRITE_BACK"
	EnvOriginRepo     = "VOLSTORE_ORIGIN_REPO"
	EnvHubCLI         = "VOLSTORE_HUB_CLI"
	EnvListenAddr     = "VOLSTORE_LISTEN_ADDR"
)

// Storage drivers.
const (
	DriverS3    = "s3"
	DriverMinIO = "minio"
)

// Retry modes understood by the AWS SDK.
const (
	RetryModeStandard = "standard"
	RetryModeAdaptive = "adaptive"
)

// datacenters maps a datacenter code to its S3 API endpoint.
var datacenters = map[string]string{
	"EUR-IS-1": "https://s3api-eur-is-1.runpod.io/",
	"EU-RO-1":  "https://s3api-eu-ro-1.runpod.io/",
	"EU-CZ-1":  "https://s3api-eu-cz-1.runpod.io/",
	"US-KS-2":  "https://s3api-us-ks-2.runpod.io/",
}

// Configuration represents the complete application configuration
type Configuration struct {
	Global  GlobalConfig  `yaml:"global"`
	Storage StorageConfig `yaml:"storage"`
	Resolve ResolveConfig `yaml:"resolve"`
	Origin  OriginConfig  `yaml:"origin"`
	Server  ServerConfig  `yaml:"server"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// StorageConfig is the credential bundle for the remote volume.
type StorageConfig struct {
	Datacenter     string        `yaml:"datacenter"`
	AccessKey      string        `yaml:"access_key"`
	SecretKey      string        `yaml:"secret_key"`
	VolumeID       string        `yaml:"volume_id"`
	KeyPrefix      string        `yaml:"key_prefix"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	RetryMode      string        `yaml:"retry_mode"`
	Driver         string        `yaml:"driver"`
}

// ResolveConfig controls where artifacts are looked up locally.
type ResolveConfig struct {
	VolumeDir    string `yaml:"volume_dir"`
	ContainerDir string `yaml:"container_dir"`
	WorkspaceDir string `yaml:"workspace_dir"`
	WriteBack    bool   `yaml:"write_back"`
}

// OriginConfig describes the model hub repository weights come from.
type OriginConfig struct {
	Repo      string `yaml:"repo"`
	HubCLI    string `yaml:"hub_cli"`
	KeyPrefix string `yaml:"key_prefix"`
	// Attempts bounds hub CLI runs per download; below 1 means one run.
	Attempts int `yaml:"attempts"`
}

// ServerConfig represents HTTP API settings
type ServerConfig struct {
	ListenAddr     string   `yaml:"listen_addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	Metrics        bool     `yaml:"metrics"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:  "info",
			LogFormat: "auto",
		},
		Storage: StorageConfig{
			RequestTimeout: 2 * time.Hour,
			MaxAttempts:    10,
			RetryMode:      RetryModeStandard,
			Driver:         DriverS3,
		},
		Resolve: ResolveConfig{
			VolumeDir:    "/runpod-volume",
			ContainerDir: "/workspace/HunyuanVideo-Avatar",
			WorkspaceDir: "/workspace",
			WriteBack:    true,
		},
		Origin: OriginConfig{
			Repo:      "tencent/HunyuanVideo-Avatar",
			HubCLI:    "huggingface-cli",
			KeyPrefix: "weights/",
			Attempts:  3,
		},
		Server: ServerConfig{
			ListenAddr:     ":8080",
			AllowedOrigins: []string{"*"},
			Metrics:        true,
		},
	}
}

// Load builds a configuration from defaults, an optional YAML file and the
// environment, in that order of precedence, and validates it. A .env file in
// the working directory is loaded first without overriding variables already
// set.
func Load(filename string) (*Configuration, error) {
	cfg, err := Read(filename)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read is Load without the final Validate, for callers that overlay more
// settings (command line flags) before validating.
func Read(filename string) (*Configuration, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(errors.ErrCodeConfigLoad, "failed to load .env", err).WithComponent("config")
	}

	cfg := NewDefault()
	if filename == "" {
		filename = os.Getenv(EnvConfigFile)
	}
	if filename != "" {
		if err := cfg.LoadFromFile(filename); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return errors.Wrap(errors.ErrCodeConfigLoad, "failed to read config file", err).
			WithComponent("config").WithContext("file", filename)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, "failed to parse config file", err).
			WithComponent("config").WithContext("file", filename)
	}

	return nil
}

// LoadFromEnv overlays values from environment variables
func (c *Configuration) LoadFromEnv() error {
	if val := os.Getenv(EnvLogLevel); val != "" {
		c.Global.LogLevel = val
	}
	if val := os.Getenv(EnvLogFormat); val != "" {
		c.Global.LogFormat = val
	}

	// Storage credentials
	if val := os.Getenv(EnvAccessKey); val != "" {
		c.Storage.AccessKey = val
	}
	if val := os.Getenv(EnvSecretKey); val != "" {
		c.Storage.SecretKey = val
	}
	if val := os.Getenv(EnvDatacenter); val != "" {
		c.Storage.Datacenter = val
	}
	if val := os.Getenv(EnvVolumeID); val != "" {
		c.Storage.VolumeID = val
	}
	if val, ok := os.LookupEnv(EnvKeyPrefix); ok {
		c.Storage.KeyPrefix = val
	}
	if val := os.Getenv(EnvRequestTimeout); val != "" {
		timeout, err := time.ParseDuration(val)
		if err != nil {
			return envError(EnvRequestTimeout, val, err)
		}
		c.Storage.RequestTimeout = timeout
	}
	if val := os.Getenv(EnvMaxAttempts); val != "" {
		attempts, err := strconv.Atoi(val)
		if err != nil {
			return envError(EnvMaxAttempts, val, err)
		}
		c.Storage.MaxAttempts = attempts
	}
	if val := os.Getenv(EnvRetryMode); val != "" {
		c.Storage.RetryMode = strings.ToLower(val)
	}
	if val := os.Getenv(EnvDriver); val != "" {
		c.Storage.Driver = strings.ToLower(val)
	}

	// Local lookup
	if val := os.Getenv(EnvVolumeDir); val != "" {
		c.Resolve.VolumeDir = val
	}
	if val := os.Getenv(EnvContainerDir); val != "" {
		c.Resolve.ContainerDir = val
	}
	if val := os.Getenv(EnvWorkspaceDir); val != "" {
		c.Resolve.WorkspaceDir = val
	}
	if val := os.Getenv(EnvWriteBack); val != "" {
		writeBack, err := strconv.ParseBool(val)
		if err != nil {
			return envError(EnvWriteBack, val, err)
		}
		c.Resolve.WriteBack = writeBack
	}

	if val := os.Getenv(EnvOriginRepo); val != "" {
		c.Origin.Repo = val
	}
	if val := os.Getenv(EnvHubCLI); val != "" {
		c.Origin.HubCLI = val
	}
	if val := os.Getenv(EnvListenAddr); val != "" {
		c.Server.ListenAddr = val
	}

	return nil
}

func envError(name, value string, cause error) error {
	return errors.Wrap(errors.ErrCodeInvalidConfig, fmt.Sprintf("invalid value for %s", name), cause).
		WithComponent("config").WithContext("value", value)
}

// Validate checks settings that apply regardless of whether remote storage
// is configured. Storage credentials are checked by StorageConfig.Validate.
func (c *Configuration) Validate() error {
	validLogLevels := []string{"trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled"}
	if !contains(validLogLevels, strings.ToLower(c.Global.LogLevel)) {
		return invalid("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}

	validFormats := []string{"auto", "console", "json"}
	if !contains(validFormats, strings.ToLower(c.Global.LogFormat)) {
		return invalid("invalid log_format: %s (must be one of: %s)",
			c.Global.LogFormat, strings.Join(validFormats, ", "))
	}

	if c.Resolve.WorkspaceDir == "" {
		return errors.NewError(errors.ErrCodeMissingConfig, "workspace_dir is required").WithComponent("config")
	}

	return nil
}

// Validate checks that every required credential is present and the
// datacenter code is known.
func (s *StorageConfig) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{EnvAccessKey, s.AccessKey},
		{EnvSecretKey, s.SecretKey},
		{EnvDatacenter, s.Datacenter},
		{EnvVolumeID, s.VolumeID},
	}

	var missing []string
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return errors.NewError(errors.ErrCodeMissingConfig,
			fmt.Sprintf("missing required storage settings: %s", strings.Join(missing, ", "))).
			WithComponent("config").
			WithDetail("missing", missing)
	}

	if _, err := EndpointFor(s.Datacenter); err != nil {
		return err
	}

	if s.RequestTimeout <= 0 {
		return invalid("request_timeout must be greater than 0")
	}
	if s.MaxAttempts <= 0 {
		return invalid("max_attempts must be greater than 0")
	}
	if s.RetryMode != RetryModeStandard && s.RetryMode != RetryModeAdaptive {
		return invalid("invalid retry_mode: %s (must be %s or %s)", s.RetryMode, RetryModeStandard, RetryModeAdaptive)
	}
	if s.Driver != DriverS3 && s.Driver != DriverMinIO {
		return invalid("invalid driver: %s (must be %s or %s)", s.Driver, DriverS3, DriverMinIO)
	}

	return nil
}

// Configured reports whether any credential has been supplied. A bundle that is
// not configured at all means the remote tier is intentionally absent.
func (s *StorageConfig) Configured() bool {
	return s.AccessKey != "" || s.SecretKey != "" || s.Datacenter != "" || s.VolumeID != ""
}

// Region returns the normalized datacenter code, used as the signing region.
func (s *StorageConfig) Region() string {
	return strings.ToUpper(strings.TrimSpace(s.Datacenter))
}

// Endpoint returns the endpoint URL for the configured datacenter.
func (s *StorageConfig) Endpoint() (string, error) {
	return EndpointFor(s.Datacenter)
}

// String describes the bundle without exposing the secret key.
func (s StorageConfig) String() string {
	return fmt.Sprintf("StorageConfig{datacenter=%s volume=%s prefix=%q driver=%s timeout=%s}",
		s.Region(), s.VolumeID, s.KeyPrefix, s.Driver, s.RequestTimeout)
}

// EndpointFor maps a datacenter code to its endpoint URL. Lookup is
// case-insensitive; unknown codes are rejected.
func EndpointFor(datacenter string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(datacenter))
	endpoint, ok := datacenters[code]
	if !ok {
		return "", errors.NewError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("unknown datacenter %q (must be one of: %s)", datacenter, strings.Join(Datacenters(), ", "))).
			WithComponent("config")
	}
	return endpoint, nil
}

// Datacenters returns the known datacenter codes in sorted order.
func Datacenters() []string {
	codes := make([]string, 0, len(datacenters))
	for code := range datacenters {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func invalid(format string, args ...interface{}) error {
	return errors.NewError(errors.ErrCodeInvalidConfig, fmt.Sprintf(format, args...)).WithComponent("config")
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
