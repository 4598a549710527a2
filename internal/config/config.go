package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	LogLevel   string   `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	HTTPPort   string   `yaml:"http-port" env:"HTTP_PORT" env-default:"9090"`
	SocketPort string   `yaml:"socket-port" env:"SOCKET_PORT" env-default:"3001"`
	Postgres   Postgres `yaml:"postgres"`
	Liveness   Liveness `yaml:"liveness"`
}

type Postgres struct {
	Host     string `yaml:"host" env:"POSTGRES_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"POSTGRES_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"POSTGRES_USER" env-default:"postgres"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD" env-default:""`
	Database string `yaml:"database" env:"POSTGRES_DB" env-default:"scythian_ladder"`
	SSLMode  string `yaml:"ssl-mode" env:"POSTGRES_SSLMODE" env-default:"disable"`
}

type Liveness struct {
	IdleWaitingThreshold time.Duration `yaml:"idle-waiting-threshold" env-default:"10m"`
	HeartbeatTimeout     time.Duration `yaml:"heartbeat-timeout" env-default:"2m"`
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		panic(fmt.Errorf("unable to load config file: %w", err))
	}

	return config
}

func (that *Postgres) GetDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		that.Host, that.Port, that.User, that.Password, that.Database, that.SSLMode)
}
