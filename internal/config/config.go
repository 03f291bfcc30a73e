package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port            string `yaml:"port"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL   string `yaml:"url"`
		Audit bool   `yaml:"audit"`
	} `yaml:"postgres"`
	AMQP struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"amqp"`
	Questions struct {
		TTL string `yaml:"ttl"`
	} `yaml:"questions"`
	Engine struct {
		RevealDelay   string `yaml:"reveal_delay"`
		GracePeriod   string `yaml:"grace_period"`
		ReadyTimeout  string `yaml:"ready_timeout"`
		Retention     string `yaml:"retention"`
		SweepInterval string `yaml:"sweep_interval"`
		Workers       int    `yaml:"workers"`
		QueueSize     int    `yaml:"queue_size"`
	} `yaml:"engine"`
	Scoring struct {
		BaseScore        int     `yaml:"base_score"`
		MaxTimeBonus     int     `yaml:"max_time_bonus"`
		MinAnswerTime    string  `yaml:"min_answer_time"`
		MaxAnswerTime    string  `yaml:"max_answer_time"`
		DifficultyWeight float64 `yaml:"difficulty_weight"`
	} `yaml:"scoring"`
	AntiCheat struct {
		HardFloor                 string  `yaml:"hard_floor"`
		FastFactor                float64 `yaml:"fast_factor"`
		StreakThreshold           int     `yaml:"streak_threshold"`
		WindowSize                int     `yaml:"window_size"`
		FlaggedMatchLimit         int     `yaml:"flagged_match_limit"`
		FlagWindow                string  `yaml:"flag_window"`
		MaxAccountsPerIP          int     `yaml:"max_accounts_per_ip"`
		MaxAccountsPerFingerprint int     `yaml:"max_accounts_per_fingerprint"`
	} `yaml:"anticheat"`
	// Outcome fractions are pointers so an explicit 0 differs from unset.
	Rewards struct {
		BaseXP          int      `yaml:"base_xp"`
		XPPerCorrect    int      `yaml:"xp_per_correct"`
		BaseCoins       int      `yaml:"base_coins"`
		CoinsPerPoint   float64  `yaml:"coins_per_point"`
		TimeBonusXPRate float64  `yaml:"time_bonus_xp_rate"`
		VictoryFraction *float64 `yaml:"victory_fraction"`
		DrawFraction    *float64 `yaml:"draw_fraction"`
		DefeatFraction  *float64 `yaml:"defeat_fraction"`
		AbortedFraction *float64 `yaml:"aborted_fraction"`
		StreakStep      float64  `yaml:"streak_step"`
		MaxStreak       float64  `yaml:"max_streak_multiplier"`
	} `yaml:"rewards"`
	Bot struct {
		Enabled bool   `yaml:"enabled"`
		Seed    uint64 `yaml:"seed"`
	} `yaml:"bot"`
}

// Load reads YAML config from path, then applies environment overrides.
// A missing .env file is not an error.
func Load(path string) (Config, error) {
	cfg := Config{}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.Port, "PORT")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Postgres.URL, "POSTGRES_URL")
	setString(&c.AMQP.URL, "AMQP_URL")
	if v, ok := os.LookupEnv("REDIS_DB"); ok {
		if db, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = db
		}
	}
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// IntOr returns v unless it is zero.
func IntOr(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

// FloatOr returns v unless it is zero.
func FloatOr(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return v
}

// FractionOr returns *v when it is set.
func FractionOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}
