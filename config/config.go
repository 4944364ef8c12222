package config

import (
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Backend  BackendConfig  `yaml:"backend"`
	LiveKit  LiveKitConfig  `yaml:"livekit"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Media    MediaConfig    `yaml:"media"`
	Layout   LayoutConfig   `yaml:"layout"`
	Control  ControlConfig  `yaml:"control"`
	Storage  StorageConfig  `yaml:"storage"`
	Logger   LoggerConfig   `yaml:"logger"`
}

// BackendConfig points at the MeetSolis REST API.
type BackendConfig struct {
	BaseURL        string `yaml:"baseUrl"`
	AuthToken      string `yaml:"authToken"`
	RequestTimeout int    `yaml:"requestTimeout"` // in seconds
}

type LiveKitConfig struct {
	Host      string `yaml:"host"`
	APIKey    string `yaml:"apiKey"`
	APISecret string `yaml:"apiSecret"`
}

// RealtimeConfig points at the hosted realtime channel endpoint.
type RealtimeConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"apiKey"`
}

type MediaConfig struct {
	VideoQuality     string `yaml:"videoQuality"` // hd | fullhd
	AudioQuality     string `yaml:"audioQuality"` // standard | high
	AutoMuteOnJoin   bool   `yaml:"autoMuteOnJoin"`
	NoiseSuppression bool   `yaml:"noiseSuppression"`
}

type LayoutConfig struct {
	MaxTilesVisible int  `yaml:"maxTilesVisible"`
	HideNoVideo     bool `yaml:"hideNoVideo"`
}

// ControlConfig configures the local control API server.
type ControlConfig struct {
	Host         string `yaml:"host"`
	Port         string `yaml:"port"`
	AuthToken    string `yaml:"authToken"`
	ReadTimeout  int    `yaml:"readTimeout"`
	WriteTimeout int    `yaml:"writeTimeout"`
}

type StorageConfig struct {
	Path string `yaml:"path"` // sqlite file for persisted client state
}

type LoggerConfig struct {
	Level      string `yaml:"level"`
	OutputPath string `yaml:"outputPath"`
}

var (
	config *Config
	once   sync.Once
)

// Load reads the configuration file and returns a Config struct
func Load(configPath string) (*Config, error) {
	once.Do(func() {
		config = &Config{}

		data, err := os.ReadFile(configPath)
		if err != nil {
			panic(err)
		}

		err = yaml.Unmarshal(data, config)
		if err != nil {
			panic(err)
		}

		applyDefaults(config)

		// Override with environment variables if they exist
		if backendURL := os.Getenv("BACKEND_URL"); backendURL != "" {
			config.Backend.BaseURL = backendURL
		}
		if backendToken := os.Getenv("BACKEND_TOKEN"); backendToken != "" {
			config.Backend.AuthToken = backendToken
		}
		if livekitHost := os.Getenv("LIVEKIT_HOST"); livekitHost != "" {
			config.LiveKit.Host = livekitHost
		}
		if livekitApiKey := os.Getenv("LIVEKIT_API_KEY"); livekitApiKey != "" {
			config.LiveKit.APIKey = livekitApiKey
		}
		if livekitApiSecret := os.Getenv("LIVEKIT_API_SECRET"); livekitApiSecret != "" {
			config.LiveKit.APISecret = livekitApiSecret
		}
		if realtimeURL := os.Getenv("REALTIME_URL"); realtimeURL != "" {
			config.Realtime.URL = realtimeURL
		}
		if controlPort := os.Getenv("CONTROL_PORT"); controlPort != "" {
			config.Control.Port = controlPort
		}
		if controlToken := os.Getenv("CONTROL_TOKEN"); controlToken != "" {
			config.Control.AuthToken = controlToken
		}
		if storagePath := os.Getenv("STORAGE_PATH"); storagePath != "" {
			config.Storage.Path = storagePath
		}
	})

	return config, nil
}

func applyDefaults(c *Config) {
	if c.Backend.RequestTimeout == 0 {
		c.Backend.RequestTimeout = 15
	}
	if c.Media.VideoQuality == "" {
		c.Media.VideoQuality = "hd"
	}
	if c.Media.AudioQuality == "" {
		c.Media.AudioQuality = "standard"
	}
	if c.Layout.MaxTilesVisible == 0 {
		c.Layout.MaxTilesVisible = 16
	}
	if c.Control.Host == "" {
		c.Control.Host = "127.0.0.1"
	}
	if c.Control.Port == "" {
		c.Control.Port = "8091"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "meetsolis-client.db"
	}
}

// Get returns the loaded configuration
func Get() *Config {
	if config == nil {
		panic("Config not loaded")
	}
	return config
}
