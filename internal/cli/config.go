// Config loading for the metalens CLI.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mesh-intelligence/metalens/internal/analysis"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	envPrefix = "METALENS"
)

// Config keys.
const (
	cfgKeyEndpoint   = "analysis.endpoint"
	cfgKeyModel      = "analysis.model"
	cfgKeyAPIKey     = "analysis.api_key"
	cfgKeyTimeout    = "analysis.timeout"
	cfgKeyMaxPayload = "analysis.max_payload_bytes"
	cfgKeyCacheSize  = "analysis.cache_size"
	cfgKeyCacheTTL   = "analysis.cache_ttl"
	cfgKeyOutputDir  = "output_dir"
	cfgKeyLogLevel   = "log.level"
	cfgKeyLogFormat  = "log.format"
)

// envKeys are the keys overridable through METALENS_<KEY> variables.
// output_dir is absent: METALENS_OUTPUT_DIR ranks below the config file and is
// read by paths.ResolveOutputDir.
var envKeys = []string{
	cfgKeyEndpoint,
	cfgKeyModel,
	cfgKeyTimeout,
	cfgKeyMaxPayload,
	cfgKeyCacheSize,
	cfgKeyCacheTTL,
	cfgKeyLogLevel,
	cfgKeyLogFormat,
}

// defaultConfigYAML is written to config.yaml on first run.
const defaultConfigYAML = `# metalens configuration

analysis:
  endpoint: https://generativelanguage.googleapis.com/v1beta
  model: gemini-2.5-flash
  # api_key is usually supplied through GEMINI_API_KEY instead.
  # api_key:
  timeout: 60s
  # Files larger than this are never sent for analysis.
  max_payload_bytes: 10485760
  cache_size: 32
  cache_ttl: 30m

# Directory artifacts are written to (optional; overridable by --out).
# output_dir:

log:
  level: warn
  format: text
`

// Config is the resolved CLI configuration.
type Config struct {
	Analysis  AnalysisConfig
	OutputDir string
	LogLevel  string
	LogFormat string
}

// AnalysisConfig configures the analysis client.
type AnalysisConfig struct {
	Endpoint        string
	Model           string
	APIKey          string
	Timeout         time.Duration
	MaxPayloadBytes int64
	CacheSize       int
	CacheTTL        time.Duration
}

// loadConfig reads config.yaml from the config directory using Viper,
// creating the directory and a default config.yaml on first run. Values in
// envKeys can be overridden through METALENS_* environment variables; the API
// key also honors GEMINI_API_KEY and API_KEY.
func loadConfig(configDir string) (Config, error) {
	if err := ensureConfigDir(configDir); err != nil {
		return Config{}, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return Config{}, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyEndpoint, analysis.DefaultEndpoint)
	v.SetDefault(cfgKeyModel, analysis.DefaultModel)
	v.SetDefault(cfgKeyTimeout, analysis.DefaultTimeout)
	v.SetDefault(cfgKeyMaxPayload, analysis.DefaultMaxPayloadBytes)
	v.SetDefault(cfgKeyCacheSize, analysis.DefaultCacheSize)
	v.SetDefault(cfgKeyCacheTTL, analysis.DefaultCacheTTL)
	v.SetDefault(cfgKeyLogLevel, "warn")
	v.SetDefault(cfgKeyLogFormat, "text")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	if err := v.BindEnv(cfgKeyAPIKey, envPrefix+"_ANALYSIS_API_KEY", "GEMINI_API_KEY", "API_KEY"); err != nil {
		return Config{}, fmt.Errorf("bind api key env: %w", err)
	}

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	return Config{
		Analysis: AnalysisConfig{
			Endpoint:        v.GetString(cfgKeyEndpoint),
			Model:           v.GetString(cfgKeyModel),
			APIKey:          v.GetString(cfgKeyAPIKey),
			Timeout:         v.GetDuration(cfgKeyTimeout),
			MaxPayloadBytes: v.GetInt64(cfgKeyMaxPayload),
			CacheSize:       v.GetInt(cfgKeyCacheSize),
			CacheTTL:        v.GetDuration(cfgKeyCacheTTL),
		},
		OutputDir: v.GetString(cfgKeyOutputDir),
		LogLevel:  v.GetString(cfgKeyLogLevel),
		LogFormat: v.GetString(cfgKeyLogFormat),
	}, nil
}

// ensureConfigDir creates the config directory if it does not exist.
func ensureConfigDir(configDir string) error {
	return os.MkdirAll(configDir, 0o755)
}

// ensureDefaultConfigFile creates a default config.yaml if the file does not
// exist in the config directory.
func ensureDefaultConfigFile(configDir string) error {
	_, err := writeDefaultConfig(configDir)
	return err
}

// writeDefaultConfig writes config.yaml unless it exists and reports whether
// it wrote one.
func writeDefaultConfig(configDir string) (bool, error) {
	path := filepath.Join(configDir, configFileExt)

	_, err := os.Stat(path)
	if err == nil {
		return false, nil
	}
	if !os.IsNotExist(err) {
		return false, fmt.Errorf("stat config file: %w", err)
	}

	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0o644); err != nil {
		return false, err
	}
	return true, nil
}
