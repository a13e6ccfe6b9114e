package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the default config file name.
const FileName = "splitpay.yaml"

// Config represents the top-level splitpay.yaml configuration.
type Config struct {
	Member     MemberConfig     `yaml:"member"`
	Currency   CurrencyConfig   `yaml:"currency"`
	Allocation AllocationConfig `yaml:"allocation"`
	Pin        PinConfig        `yaml:"pin"`
	Bank       BankConfig       `yaml:"bank"`
	Log        LogConfig        `yaml:"log"`
	Audit      AuditConfig      `yaml:"audit"`
}

// MemberConfig identifies the member the CLI acts for.
type MemberConfig struct {
	ID   int64  `yaml:"id"`
	Name string `yaml:"name"`
}

// CurrencyConfig sets how minor units are displayed.
type CurrencyConfig struct {
	Code     string `yaml:"code"`
	Exponent int32  `yaml:"exponent"` // digits after the decimal point, 0 for KRW
}

// AllocationConfig selects who receives a split's remainder.
type AllocationConfig struct {
	Remainder string `yaml:"remainder"` // "first" or "random"
}

// PinConfig bounds transfer PIN entry.
type PinConfig struct {
	Length      int `yaml:"length"`
	MaxAttempts int `yaml:"max_attempts"`
}

// BankConfig locates the reference bank.
type BankConfig struct {
	DBPath         string        `yaml:"db_path"`
	Fixture        string        `yaml:"fixture"`
	ReservationTTL time.Duration `yaml:"reservation_ttl"`
	Redis          RedisConfig   `yaml:"redis,omitempty"`
}

// RedisConfig enables Redis-backed lookup reservations when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// AuditConfig controls the transfer audit trail.
type AuditConfig struct {
	Dir string `yaml:"dir"`
}

// Load reads a splitpay.yaml file from disk and applies environment
// overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default("")
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile loads a .env file into the process environment if present.
// Existing variables win.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Path returns the config path from SPLITPAY_CONFIG or the default.
func Path() string {
	return getEnv("SPLITPAY_CONFIG", FileName)
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new project.
func Default(memberName string) *Config {
	return &Config{
		Member: MemberConfig{
			ID:   1,
			Name: memberName,
		},
		Currency: CurrencyConfig{
			Code:     "KRW",
			Exponent: 0,
		},
		Allocation: AllocationConfig{
			Remainder: "first",
		},
		Pin: PinConfig{
			Length:      6,
			MaxAttempts: 5,
		},
		Bank: BankConfig{
			DBPath:         "bank.db",
			Fixture:        "demo",
			ReservationTTL: 10 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Audit: AuditConfig{
			Dir: "audit",
		},
	}
}

// Validate reports configuration values that cannot work.
func (c *Config) Validate() error {
	if c.Currency.Exponent < 0 || c.Currency.Exponent > 4 {
		return fmt.Errorf("currency.exponent %d out of range 0..4", c.Currency.Exponent)
	}
	if c.Pin.Length <= 0 {
		return fmt.Errorf("pin.length must be positive")
	}
	if c.Pin.MaxAttempts <= 0 {
		return fmt.Errorf("pin.max_attempts must be positive")
	}
	switch c.Allocation.Remainder {
	case "", "first", "random":
	default:
		return fmt.Errorf("allocation.remainder %q must be first or random", c.Allocation.Remainder)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Log.Level = getEnv("SPLITPAY_LOG_LEVEL", c.Log.Level)
	c.Bank.DBPath = getEnv("SPLITPAY_BANK_DB", c.Bank.DBPath)
	c.Bank.Redis.Addr = getEnv("SPLITPAY_REDIS_ADDR", c.Bank.Redis.Addr)
	c.Bank.Redis.Password = getEnv("SPLITPAY_REDIS_PASSWORD", c.Bank.Redis.Password)
	if v := os.Getenv("SPLITPAY_MEMBER_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("SPLITPAY_MEMBER_ID: %w", err)
		}
		c.Member.ID = id
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
