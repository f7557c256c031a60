/*
Package config holds the explicit configuration object passed into the
engine's call sites.

Settings are resolved once at startup (environment variables over
defaults) and handed to constructors; nothing reads ambient global state,
which keeps tests free to build fixture configs.
*/
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Organization identity, used by invoice and paystub notifications.
	OrgName      string
	OrgAddress   string
	OrgEmail     string
	PaymentEmail string

	// Billing.
	InvoicePrefix string // invoice number prefix
	DueDays       int    // invoice due date offset from issue date

	// Auth.
	TokenSecret string
	TokenTTL    time.Duration

	// Reminder scheduler.
	ReminderInterval time.Duration
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		OrgName:          "My Organization",
		OrgAddress:       "Organization Address",
		OrgEmail:         "no-reply@example.com",
		PaymentEmail:     "payments@example.com",
		InvoicePrefix:    "INV",
		DueDays:          7,
		TokenSecret:      "dev-secret-change-me",
		TokenTTL:         12 * time.Hour,
		ReminderInterval: time.Hour,
	}
}

// FromEnv overlays environment variables onto the defaults.
func FromEnv() Config {
	cfg := Default()
	overlay(&cfg.OrgName, "ORG_NAME")
	overlay(&cfg.OrgAddress, "ORG_ADDRESS")
	overlay(&cfg.OrgEmail, "ORG_EMAIL")
	overlay(&cfg.PaymentEmail, "PAYMENT_EMAIL")
	overlay(&cfg.InvoicePrefix, "INVOICE_PREFIX")
	overlay(&cfg.TokenSecret, "TOKEN_SECRET")
	if v := os.Getenv("INVOICE_DUE_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DueDays = n
		}
	}
	if v := os.Getenv("TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.TokenTTL = d
		}
	}
	if v := os.Getenv("REMINDER_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.ReminderInterval = d
		}
	}
	return cfg
}

func overlay(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}
