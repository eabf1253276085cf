package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig        `json:"server"`
	Database      DatabaseConfig      `json:"database"`
	Workflow      WorkflowConfig      `json:"workflow"`
	Notifications NotificationsConfig `json:"notifications"`
	Security      SecurityConfig      `json:"security"`
	Logging       LoggingConfig       `json:"logging"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	User           string        `json:"user"`
	Password       string        `json:"password"`
	DBName         string        `json:"db_name"`
	SSLMode        string        `json:"ssl_mode"`
	MaxConnections int           `json:"max_connections"`
	MaxIdleConns   int           `json:"max_idle_conns"`
	MaxLifetime    time.Duration `json:"max_lifetime"`
}

// WorkflowConfig holds the negotiation windows. Cooldown and expiry are
// wall-clock windows, evaluated lazily at read/transition time.
type WorkflowConfig struct {
	MatchRequestSlotLimit int           `json:"match_request_slot_limit"`
	DeclineCooldown       time.Duration `json:"decline_cooldown"`
	MatchRequestExpiry    time.Duration `json:"match_request_expiry"`
	LOIExpiry             time.Duration `json:"loi_expiry"`
	CommitmentExpiry      time.Duration `json:"commitment_expiry"`
	OrgCacheTTL           time.Duration `json:"org_cache_ttl"`
}

// NotificationsConfig configures the outbound notification channels
type NotificationsConfig struct {
	FromAddress string `json:"from_address"`
	FromName    string `json:"from_name"`
	SNSTopicARN string `json:"sns_topic_arn"`
	AWSRegion   string `json:"aws_region"`
	Disabled    bool   `json:"disabled"`
}

// SecurityConfig
type SecurityConfig struct {
	JWTSecret string `json:"jwt_secret"`
}

// LoggingConfig
type LoggingConfig struct {
	Level string `json:"level"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	// Default config
	config := &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    os.Getenv("USER"),
			DBName:  "nmtc_deal_portal",
			SSLMode: "disable",
		},
		Workflow: WorkflowConfig{
			MatchRequestSlotLimit: 3,
			DeclineCooldown:       7 * 24 * time.Hour,
			MatchRequestExpiry:    30 * 24 * time.Hour,
			LOIExpiry:             30 * 24 * time.Hour,
			CommitmentExpiry:      30 * 24 * time.Hour,
			OrgCacheTTL:           5 * time.Minute,
		},
		Notifications: NotificationsConfig{
			FromAddress: "no-reply@nmtc-connect.example.com",
			FromName:    "NMTC Connect",
			AWSRegion:   "us-east-1",
		},
	}

	// Load from file if exists
	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Override with environment variables
	overrideWithEnv(config)

	return config, nil
}

func overrideWithEnv(config *Config) {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if dbHost := os.Getenv("DATABASE_HOST"); dbHost != "" {
		config.Database.Host = dbHost
	}
	if dbPort := os.Getenv("DATABASE_PORT"); dbPort != "" {
		if p, err := strconv.Atoi(dbPort); err == nil {
			config.Database.Port = p
		}
	}
	if dbUser := os.Getenv("DATABASE_USER"); dbUser != "" {
		config.Database.User = dbUser
	}
	if dbPass := os.Getenv("DATABASE_PASSWORD"); dbPass != "" {
		config.Database.Password = dbPass
	}
	if dbName := os.Getenv("DATABASE_DBNAME"); dbName != "" {
		config.Database.DBName = dbName
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.Security.JWTSecret = secret
	}
	if topic := os.Getenv("SNS_TOPIC_ARN"); topic != "" {
		config.Notifications.SNSTopicARN = topic
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		config.Notifications.AWSRegion = region
	}
	if from := os.Getenv("NOTIFICATIONS_FROM_ADDRESS"); from != "" {
		config.Notifications.FromAddress = from
	}
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
