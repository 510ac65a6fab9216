package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/azatbro/art-auction-bot/internal/auction"
)

type AppConfig struct {
	BotToken  string
	TgAPIBase string

	RedisURL    string
	DatabaseURL string

	TemplateDir string

	AllowedChats []string

	PollTimeoutSec int

	// game rules
	StartMoney    int
	LoanBonus     int
	LoanPayback   int
	ArtworkCap    int
	RealValueMin  int
	RealValueMax  int
	StartOffsets  []int
	PriceStep     int
	BidTimerSec   int
	StartDelaySec int
	BidSteps      []int
}

func Load() (*AppConfig, error) {
	def := auction.DefaultRules()
	cfg := &AppConfig{
		TgAPIBase:      "https://api.telegram.org",
		PollTimeoutSec: 25,
		StartMoney:     def.StartingBalance,
		LoanBonus:      def.LoanBonus,
		LoanPayback:    def.LoanPayback,
		ArtworkCap:     def.ArtworkCap,
		RealValueMin:   def.RealValueMin,
		RealValueMax:   def.RealValueMax,
		StartOffsets:   def.StartOffsets,
		PriceStep:      def.PriceStep,
		BidTimerSec:    def.CountdownTicks,
		StartDelaySec:  int(def.StartDelay / time.Second),
		BidSteps:       def.BidSteps,
	}

	cfg.BotToken = strings.TrimSpace(os.Getenv("BOT_TOKEN"))
	if v := strings.TrimSpace(os.Getenv("TG_API_BASE")); v != "" {
		cfg.TgAPIBase = strings.TrimRight(v, "/")
	}
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.TemplateDir = strings.TrimSpace(os.Getenv("TEMPLATE_DIR"))

	if v := strings.TrimSpace(os.Getenv("ALLOWED_CHATS")); v != "" {
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				cfg.AllowedChats = append(cfg.AllowedChats, s)
			}
		}
	}

	intEnv := func(key string, dst *int) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			}
		}
	}
	intEnv("POLL_TIMEOUT_SEC", &cfg.PollTimeoutSec)
	intEnv("START_MONEY", &cfg.StartMoney)
	intEnv("LOAN_BONUS", &cfg.LoanBonus)
	intEnv("LOAN_PAYBACK", &cfg.LoanPayback)
	intEnv("ARTWORK_CAP", &cfg.ArtworkCap)
	intEnv("REAL_MIN", &cfg.RealValueMin)
	intEnv("REAL_MAX", &cfg.RealValueMax)
	intEnv("PRICE_STEP", &cfg.PriceStep)
	intEnv("BID_TIMER_SEC", &cfg.BidTimerSec)

	if v := strings.TrimSpace(os.Getenv("START_DELAY_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.StartDelaySec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("START_OFFSETS")); v != "" {
		if list := parseIntList(v); len(list) > 0 {
			cfg.StartOffsets = list
		}
	}
	if v := strings.TrimSpace(os.Getenv("BID_STEPS")); v != "" {
		if list := parseIntList(v); len(list) > 0 {
			cfg.BidSteps = list
		}
	}

	if cfg.BotToken == "" {
		return nil, errors.New("BOT_TOKEN is required")
	}
	if cfg.RealValueMax <= cfg.RealValueMin {
		return nil, errors.New("REAL_MAX must exceed REAL_MIN")
	}

	return cfg, nil
}

// Rules maps the env-sourced constants onto the engine's rule set.
func (c *AppConfig) Rules() auction.Rules {
	return auction.Rules{
		StartingBalance: c.StartMoney,
		LoanBonus:       c.LoanBonus,
		LoanPayback:     c.LoanPayback,
		ArtworkCap:      c.ArtworkCap,
		RealValueMin:    c.RealValueMin,
		RealValueMax:    c.RealValueMax,
		StartOffsets:    append([]int(nil), c.StartOffsets...),
		PriceStep:       c.PriceStep,
		CountdownTicks:  c.BidTimerSec,
		TickInterval:    time.Second,
		StartDelay:      time.Duration(c.StartDelaySec) * time.Second,
		BidSteps:        append([]int(nil), c.BidSteps...),
	}
}

func parseIntList(v string) []int {
	var out []int
	for _, p := range strings.Split(v, ",") {
		s := strings.TrimSpace(p)
		if s == "" {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return nil
		}
		out = append(out, n)
	}
	return out
}
