package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	GRPC     GRPCConfig     `yaml:"grpc"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Booking  BookingConfig  `yaml:"booking"`
	Worker   WorkerConfig   `yaml:"worker"`
	Log      LogConfig      `yaml:"log"`
	Store    StoreConfig    `yaml:"store"`
}

type HTTPConfig struct {
	Address    string `yaml:"address"`
	SwaggerDir string `yaml:"swagger_dir"`
}

type GRPCConfig struct {
	Address string `yaml:"address"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int32  `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers     []string `yaml:"brokers"`
	TopicPrefix string   `yaml:"topic_prefix"`
	GroupID     string   `yaml:"group_id"`
}

type BookingConfig struct {
	HoldTTLMinutes  int `yaml:"hold_ttl_minutes"`
	FlightsCacheTTL int `yaml:"flights_cache_ttl_seconds"`
}

func (b BookingConfig) HoldTTL() time.Duration {
	return time.Duration(b.HoldTTLMinutes) * time.Minute
}

func (b BookingConfig) CacheTTL() time.Duration {
	return time.Duration(b.FlightsCacheTTL) * time.Second
}

type WorkerConfig struct {
	Embedded              bool `yaml:"embedded"`
	ReaperIntervalSeconds int  `yaml:"reaper_interval_seconds"`
	DispatchIntervalMs    int  `yaml:"dispatch_interval_ms"`
	DispatchBatchSize     int  `yaml:"dispatch_batch_size"`
	OutboxMaxRetries      int  `yaml:"outbox_max_retries"`
	OutboxRetentionHours  int  `yaml:"outbox_retention_hours"`
}

func (w WorkerConfig) ReaperInterval() time.Duration {
	return time.Duration(w.ReaperIntervalSeconds) * time.Second
}

func (w WorkerConfig) DispatchInterval() time.Duration {
	return time.Duration(w.DispatchIntervalMs) * time.Millisecond
}

func (w WorkerConfig) OutboxRetention() time.Duration {
	return time.Duration(w.OutboxRetentionHours) * time.Hour
}

type LogConfig struct {
	Debug bool   `yaml:"debug"`
	File  string `yaml:"file"`
}

type StoreConfig struct {
	// Driver is "postgres" or "memory".
	Driver string       `yaml:"driver"`
	Seed   []SeedFlight `yaml:"seed"`
}

// SeedFlight describes a flight loaded into the memory store on start.
type SeedFlight struct {
	FlightNo      string    `yaml:"flight_no"`
	From          string    `yaml:"from"`
	To            string    `yaml:"to"`
	DepartureTime time.Time `yaml:"departure_time"`
	ArrivalTime   time.Time `yaml:"arrival_time"`
	PriceCents    int64     `yaml:"price_cents"`
	Seats         []string  `yaml:"seats"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) withDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.GRPC.Address == "" {
		c.GRPC.Address = ":9090"
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 10
	}
	if c.Booking.HoldTTLMinutes == 0 {
		c.Booking.HoldTTLMinutes = 15
	}
	if c.Booking.FlightsCacheTTL == 0 {
		c.Booking.FlightsCacheTTL = 60
	}
	if c.Worker.ReaperIntervalSeconds == 0 {
		c.Worker.ReaperIntervalSeconds = 60
	}
	if c.Worker.DispatchIntervalMs == 0 {
		c.Worker.DispatchIntervalMs = 500
	}
	if c.Worker.DispatchBatchSize == 0 {
		c.Worker.DispatchBatchSize = 100
	}
	if c.Worker.OutboxMaxRetries == 0 {
		c.Worker.OutboxMaxRetries = 3
	}
	if c.Worker.OutboxRetentionHours == 0 {
		c.Worker.OutboxRetentionHours = 72
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "seat-replica"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "postgres"
	}
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres":
		if c.Database.Host == "" || c.Database.Name == "" {
			return errors.New("database host and name are required for the postgres driver")
		}
	case "memory":
		if !c.Worker.Embedded {
			return errors.New("the memory driver keeps state in one process and requires worker.embedded")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Booking.HoldTTLMinutes < 0 {
		return errors.New("booking.hold_ttl_minutes must be positive")
	}
	return nil
}
