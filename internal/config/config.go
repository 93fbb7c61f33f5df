package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Relay    RelayConfig    `yaml:"relay"`
	Auth     AuthConfig     `yaml:"auth"`
	CORS     CORSConfig     `yaml:"cors"`  // CORS configuration
	Admin    AdminConfig    `yaml:"admin"` // Admin API access control configuration
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr host:port for net/http
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig Database configuration
type DatabaseConfig struct {
	DSN    string `yaml:"dsn"`
	Driver string `yaml:"driver"` // postgres | sqlite
}

// NATSConfig NATS message server configuration
type NATSConfig struct {
	URL           string `yaml:"url"`
	Timeout       int    `yaml:"timeout"` // seconds
	ReconnectWait int    `yaml:"reconnect_wait"`
	MaxReconnects int    `yaml:"max_reconnects"`
	EventSubject  string `yaml:"event_subject"` // committed bridge events are republished under <event_subject>.<type>
}

// Fungible release policies
const (
	ReleasePolicyTransfer = "transfer"
	ReleasePolicyMint     = "mint"
)

// BridgeConfig bridge deployment parameters
type BridgeConfig struct {
	LocalChainID          uint32   `yaml:"localChainId"`
	ExternalChainID       uint16   `yaml:"externalChainId"` // this chain's id on the relay network
	EmitterAddress        string   `yaml:"emitterAddress"` // this bridge's identity on the relay network
	CustodyAddress        string   `yaml:"custodyAddress"` // ledger account holding locked assets
	TokenContract         string   `yaml:"tokenContract"`
	NFTContract           string   `yaml:"nftContract"`
	ConsistencyLevel      uint8    `yaml:"consistencyLevel"`
	FungibleReleasePolicy string   `yaml:"fungibleReleasePolicy"`
	Admins                []string `yaml:"admins"`   // bootstrap admin accounts
	Relayers              []string `yaml:"relayers"` // bootstrap relayer accounts
}

// Relay modes
const (
	RelayModeDevnet = "devnet"
	RelayModeNATS   = "nats"
)

// RelayConfig external relay network client
type RelayConfig struct {
	Mode          string   `yaml:"mode"`
	Timeout       int      `yaml:"timeout"`       // seconds, bound on every relay call
	SubjectPrefix string   `yaml:"subjectPrefix"` // NATS request subjects
	GuardianKeys  []string `yaml:"guardianKeys"`  // devnet signing keys (hex)
	ServeDevnet   bool     `yaml:"serveDevnet"`   // host the devnet network on NATS
}

// AuthConfig caller authentication
type AuthConfig struct {
	JWTSecret       string `yaml:"jwtSecret"`
	TokenTTLMinutes int    `yaml:"tokenTtlMinutes"`
	AdminTOTPSecret string `yaml:"adminTotpSecret"` // optional second factor on admin routes
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`   // List of allowed origins
	AllowCredentials bool     `yaml:"allowCredentials"` // Whether to allow credentials
	MaxAge           int      `yaml:"maxAge"`           // Max age for preflight requests (seconds)
}

// AdminConfig Admin API access control configuration
type AdminConfig struct {
	AllowedIPs []string `yaml:"allowedIPs"` // List of allowed IP addresses or CIDR ranges
}

// LogConfig logrus settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
}

var AppConfig *Config

// Default returns a configuration usable for local development
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{Driver: "sqlite", DSN: "file:bridge.db?_pragma=busy_timeout(5000)"},
		NATS: NATSConfig{
			Timeout:       10,
			ReconnectWait: 5,
			MaxReconnects: -1,
			EventSubject:  "bridge.events",
		},
		Bridge: BridgeConfig{
			LocalChainID:          1,
			ExternalChainID:       1,
			EmitterAddress:        "0x0000000000000000000000000000000000000b1d",
			CustodyAddress:        "0x00000000000000000000000000000000000c0575",
			ConsistencyLevel:      1,
			FungibleReleasePolicy: ReleasePolicyTransfer,
		},
		Relay: RelayConfig{
			Mode:          RelayModeDevnet,
			Timeout:       10,
			SubjectPrefix: "relay",
		},
		Auth: AuthConfig{TokenTTLMinutes: 60},
		Log:  LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig Load configuration file
func LoadConfig(configPath string) (*Config, error) {
	// if configuration file path empty, use default path
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
			logrus.Info("🔧 Using local configuration file: config.local.yaml")
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"path":        configPath,
		"local_chain": cfg.Bridge.LocalChainID,
		"relay_mode":  cfg.Relay.Mode,
		"db_driver":   cfg.Database.Driver,
	}).Infof("✅ [%s] Configuration loaded", time.Now().Format("2006-01-02 15:04:05"))

	AppConfig = cfg
	return cfg, nil
}

// Parse decodes YAML on top of Default(), applies environment overrides and validates
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	overrideFromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overrideFromEnv Override configuration from environment variables
func overrideFromEnv(config *Config) {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}
	if driver := os.Getenv("DATABASE_DRIVER"); driver != "" {
		config.Database.Driver = driver
	}

	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
	}
	if natsTimeout := os.Getenv("NATS_TIMEOUT"); natsTimeout != "" {
		if t, err := strconv.Atoi(natsTimeout); err == nil {
			config.NATS.Timeout = t
		}
	}

	if chainID := os.Getenv("BRIDGE_LOCAL_CHAIN_ID"); chainID != "" {
		if id, err := strconv.ParseUint(chainID, 10, 32); err == nil {
			config.Bridge.LocalChainID = uint32(id)
		}
	}
	if chainID := os.Getenv("BRIDGE_EXTERNAL_CHAIN_ID"); chainID != "" {
		if id, err := strconv.ParseUint(chainID, 10, 16); err == nil {
			config.Bridge.ExternalChainID = uint16(id)
		}
	}
	if admins := os.Getenv("BRIDGE_ADMINS"); admins != "" {
		config.Bridge.Admins = splitList(admins)
	}
	if relayers := os.Getenv("BRIDGE_RELAYERS"); relayers != "" {
		config.Bridge.Relayers = splitList(relayers)
	}

	if mode := os.Getenv("RELAY_MODE"); mode != "" {
		config.Relay.Mode = mode
	}
	if keys := os.Getenv("RELAY_GUARDIAN_KEYS"); keys != "" {
		config.Relay.GuardianKeys = splitList(keys)
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.Auth.JWTSecret = secret
	}
	if totpSecret := os.Getenv("ADMIN_TOTP_SECRET"); totpSecret != "" {
		config.Auth.AdminTOTPSecret = totpSecret
	}

	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		config.CORS.AllowedOrigins = splitList(corsOrigins)
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Validate checks the values the bridge cannot run without
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}
	if c.Bridge.LocalChainID == 0 {
		return fmt.Errorf("bridge.localChainId is required")
	}
	if c.Bridge.ExternalChainID == 0 {
		return fmt.Errorf("bridge.externalChainId is required")
	}

	addresses := map[string]string{
		"bridge.emitterAddress": c.Bridge.EmitterAddress,
		"bridge.custodyAddress": c.Bridge.CustodyAddress,
	}
	if c.Bridge.TokenContract != "" {
		addresses["bridge.tokenContract"] = c.Bridge.TokenContract
	}
	if c.Bridge.NFTContract != "" {
		addresses["bridge.nftContract"] = c.Bridge.NFTContract
	}
	for field, value := range addresses {
		if !common.IsHexAddress(value) {
			return fmt.Errorf("%s: invalid address %q", field, value)
		}
	}
	for _, account := range append(append([]string{}, c.Bridge.Admins...), c.Bridge.Relayers...) {
		if !common.IsHexAddress(account) {
			return fmt.Errorf("bridge role account: invalid address %q", account)
		}
	}

	switch c.Bridge.FungibleReleasePolicy {
	case ReleasePolicyTransfer, ReleasePolicyMint:
	default:
		return fmt.Errorf("unsupported fungible release policy %q", c.Bridge.FungibleReleasePolicy)
	}

	switch c.Relay.Mode {
	case RelayModeDevnet:
	case RelayModeNATS:
		if c.NATS.URL == "" {
			return fmt.Errorf("relay mode nats requires nats.url")
		}
	default:
		return fmt.Errorf("unsupported relay mode %q", c.Relay.Mode)
	}
	if c.Relay.Timeout <= 0 {
		return fmt.Errorf("relay.timeout must be positive")
	}
	return nil
}

// RelayTimeout bound applied to every relay call
func (c *Config) RelayTimeout() time.Duration {
	return time.Duration(c.Relay.Timeout) * time.Second
}

// TokenTTL lifetime of issued caller tokens
func (c *Config) TokenTTL() time.Duration {
	if c.Auth.TokenTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.Auth.TokenTTLMinutes) * time.Minute
}

// NewLogger builds the process logger from the log section
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(c.Log.Level); err == nil {
		logger.SetLevel(level)
	}
	if c.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
