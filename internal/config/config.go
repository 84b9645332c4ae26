package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Camera   CameraConfig   `mapstructure:"camera"`
	Detector DetectorConfig `mapstructure:"detector"`
	Garage   GarageConfig   `mapstructure:"garage"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port    int    `mapstructure:"port"`
	DataDir string `mapstructure:"data_dir"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type CameraConfig struct {
	// URL is the default ESP32 camera endpoint used when a detect trigger
	// does not carry its own.
	URL          string `mapstructure:"url"`
	FetchTimeout int    `mapstructure:"fetch_timeout_seconds"`
}

type DetectorConfig struct {
	// PlateModelPath points to a fine-tuned ONNX plate detector. When the
	// file is missing the traditional contour localizer is used instead.
	PlateModelPath   string  `mapstructure:"plate_model_path"`
	VehicleModelPath string  `mapstructure:"vehicle_model_path"`
	Confidence       float64 `mapstructure:"confidence"`
	Workers          int     `mapstructure:"workers"`
	QueueSize        int     `mapstructure:"queue_size"`
}

type GarageConfig struct {
	TotalSlots int `mapstructure:"total_slots"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 5000)
	v.SetDefault("server.data_dir", "data")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "garage")
	v.SetDefault("database.password", "garage")
	v.SetDefault("database.name", "garage")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("camera.url", "http://192.168.5.32:81")
	v.SetDefault("camera.fetch_timeout_seconds", 5)
	v.SetDefault("detector.plate_model_path", "models/license-plate-finetune-v1n.onnx")
	v.SetDefault("detector.vehicle_model_path", "")
	v.SetDefault("detector.confidence", 0.3)
	v.SetDefault("detector.workers", 2)
	v.SetDefault("detector.queue_size", 16)
	v.SetDefault("garage.total_slots", 4)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetEnvPrefix("GARAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Garage.TotalSlots <= 0 {
		return nil, fmt.Errorf("garage.total_slots must be positive, got %d", cfg.Garage.TotalSlots)
	}
	if cfg.Detector.Workers <= 0 {
		cfg.Detector.Workers = 2
	}
	if cfg.Detector.QueueSize <= 0 {
		cfg.Detector.QueueSize = 16
	}

	return &cfg, nil
}
