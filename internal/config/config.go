package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/arvele/voicecall/internal/domain"
)

type Config struct {
	Mode           string        `mapstructure:"mode"`
	BackendURL     string        `mapstructure:"backend_url"`
	AuthToken      string        `mapstructure:"auth_token"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Engine         string        `mapstructure:"engine"`
	STUNURLs       []string      `mapstructure:"stun_urls"`
	AudioInput     bool          `mapstructure:"audio_input"`
	AudioOutput    bool          `mapstructure:"audio_output"`
	NoiseSuppress  bool          `mapstructure:"noise_suppression"`
	EchoCancel     bool          `mapstructure:"echo_cancellation"`
	DiagAddr       string        `mapstructure:"diag_addr"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("backend_url", "http://localhost:8000")
	v.SetDefault("request_timeout", "10s")
	v.SetDefault("engine", "webrtc")
	v.SetDefault("stun_urls", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("audio_input", true)
	v.SetDefault("audio_output", true)
	v.SetDefault("noise_suppression", true)
	v.SetDefault("echo_cancellation", true)
	v.SetDefault("diag_addr", "127.0.0.1:6061")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Engine: %s | Backend: %s\n", cfg.Mode, cfg.Engine, cfg.BackendURL)
	return &cfg, nil
}

// Audio folds the flat audio keys into the domain value the store consumes.
func (c *Config) Audio() domain.AudioConfig {
	return domain.AudioConfig{
		InputEnabled:     c.AudioInput,
		OutputEnabled:    c.AudioOutput,
		NoiseSuppression: c.NoiseSuppress,
		EchoCancellation: c.EchoCancel,
	}
}
