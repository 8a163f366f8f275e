package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"

	"github.com/podpairer/server/internal/scoring"
)

var knownWeakSecrets = []string{
	"change-me", "dev-admin-token", "secret", "admin", "password",
}

type Config struct {
	Port                  int      `env:"PORT" envDefault:"9000"`
	DatabaseURL           string   `env:"DATABASE_URL,required"`
	RedisURL              string   `env:"REDIS_URL,required"`
	AdminToken            string   `env:"ADMIN_TOKEN"`
	LogLevel              string   `env:"LOG_LEVEL" envDefault:"info"`
	CORSAllowedOrigins    []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	RunMigrations         bool     `env:"RUN_MIGRATIONS" envDefault:"true"`
	ConfirmWindowSeconds  int      `env:"CONFIRM_WINDOW_SECONDS" envDefault:"120"`
	AssemblyIntervalSecs  int      `env:"ASSEMBLY_INTERVAL_SECONDS" envDefault:"30"`
	TimeoutIntervalSecs   int      `env:"TIMEOUT_INTERVAL_SECONDS" envDefault:"60"`
	AssemblyTrials        int      `env:"ASSEMBLY_TRIALS" envDefault:"10"`
	RecentPairPenalty     float64  `env:"RECENT_PAIR_PENALTY" envDefault:"0"`
	RecentPairWindowHours int      `env:"RECENT_PAIR_WINDOW_HOURS" envDefault:"24"`
	MatchCountPenalty     float64  `env:"MATCH_COUNT_PENALTY" envDefault:"0"`
	NeverRatedBonus       float64  `env:"NEVER_RATED_BONUS" envDefault:"2"`
	VetoThreshold         int      `env:"VETO_THRESHOLD" envDefault:"3"`
	PodActionLimitPerMin  int      `env:"POD_ACTION_LIMIT_PER_MINUTE" envDefault:"30"`
}

func (c *Config) ConfirmWindow() time.Duration {
	return time.Duration(c.ConfirmWindowSeconds) * time.Second
}

func (c *Config) AssemblyInterval() time.Duration {
	return time.Duration(c.AssemblyIntervalSecs) * time.Second
}

func (c *Config) TimeoutInterval() time.Duration {
	return time.Duration(c.TimeoutIntervalSecs) * time.Second
}

// ScoringWeights returns the compatibility scorer tuning.
func (c *Config) ScoringWeights() scoring.Weights {
	return scoring.Weights{
		RecentPairPenalty: c.RecentPairPenalty,
		RecentWindow:      time.Duration(c.RecentPairWindowHours) * time.Hour,
		MatchCountPenalty: c.MatchCountPenalty,
		NeverRatedBonus:   c.NeverRatedBonus,
		VetoThreshold:     c.VetoThreshold,
	}
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	if c.ConfirmWindowSeconds <= 0 {
		return fmt.Errorf("CONFIRM_WINDOW_SECONDS must be positive")
	}
	if c.AssemblyIntervalSecs <= 0 || c.TimeoutIntervalSecs <= 0 {
		return fmt.Errorf("ASSEMBLY_INTERVAL_SECONDS and TIMEOUT_INTERVAL_SECONDS must be positive")
	}
	if c.AssemblyTrials <= 0 {
		return fmt.Errorf("ASSEMBLY_TRIALS must be positive")
	}
	if c.RecentPairPenalty < 0 || c.MatchCountPenalty < 0 {
		return fmt.Errorf("penalty weights must not be negative")
	}

	if c.AdminToken == "" {
		log.Warn().Msg("ADMIN_TOKEN is empty: admin endpoints are disabled")
	}

	if isProduction {
		if c.AdminToken != "" {
			if err := validateSecret("ADMIN_TOKEN", c.AdminToken); err != nil {
				return err
			}
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
