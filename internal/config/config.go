package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

type AppConfig struct {
	ListenAddr string

	RedisURL    string
	DatabaseURL string

	JWTSecret     string
	JWTExpireDays int

	CommissionRate     float64
	DisconnectGraceSec int
	OfferTTLSec        int
	DemoStartBalance   float64
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:         ":8080",
		JWTExpireDays:      14,
		CommissionRate:     0.15,
		DisconnectGraceSec: 60,
		OfferTTLSec:        120,
		DemoStartBalance:   500,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.JWTSecret = strings.TrimSpace(os.Getenv("JWT_SECRET"))

	if v := strings.TrimSpace(os.Getenv("JWT_EXPIRES_DAYS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.JWTExpireDays = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("COMMISSION_RATE")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f < 1 {
			cfg.CommissionRate = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("DISCONNECT_GRACE_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DisconnectGraceSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("OFFER_TTL_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.OfferTTLSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("DEMO_START_BALANCE")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.DemoStartBalance = f
		}
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	return cfg, nil
}
