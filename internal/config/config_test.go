package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Server.Port != 8082 {
		t.Errorf("Expected default port 8082, got %d", cfg.Server.Port)
	}
	if cfg.PayU.TxnPrefix != "MB" {
		t.Errorf("Expected txn prefix 'MB', got %s", cfg.PayU.TxnPrefix)
	}
	if !cfg.Pricing.TaxRate.Equal(decimal.RequireFromString("0.03")) {
		t.Errorf("Expected default tax rate 0.03, got %s", cfg.Pricing.TaxRate)
	}
	if cfg.Email.Delivery != EmailDeliveryDirect {
		t.Errorf("Expected direct email delivery, got %s", cfg.Email.Delivery)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("PAYU_ENV", "production")
	t.Setenv("PRICING_TAX_RATE", "0.18")
	t.Setenv("FEATURE_ORDER_CACHING", "false")
	t.Setenv("REDIS_TTL_SECONDS", "60")

	cfg := Load()

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "kafka-2:9092" {
		t.Errorf("Unexpected brokers: %v", cfg.Kafka.Brokers)
	}
	if cfg.PayU.Environment != "production" {
		t.Errorf("Expected production environment, got %s", cfg.PayU.Environment)
	}
	if !cfg.Pricing.TaxRate.Equal(decimal.RequireFromString("0.18")) {
		t.Errorf("Expected tax rate 0.18, got %s", cfg.Pricing.TaxRate)
	}
	if cfg.Features.EnableOrderCaching {
		t.Error("Expected order caching to be disabled")
	}
	if cfg.Redis.TTL != time.Minute {
		t.Errorf("Expected redis TTL 1m, got %s", cfg.Redis.TTL)
	}
}

func TestGetEnvHelpers_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("TEST_INT", "not-a-number")
	t.Setenv("TEST_BOOL", "maybe")
	t.Setenv("TEST_DECIMAL", "ten")
	t.Setenv("TEST_LIST", " , ")

	if got := getEnvInt("TEST_INT", 7); got != 7 {
		t.Errorf("getEnvInt() = %d, want 7", got)
	}
	if got := getEnvBool("TEST_BOOL", true); !got {
		t.Errorf("getEnvBool() = %v, want true", got)
	}
	if got := getEnvDecimal("TEST_DECIMAL", decimal.NewFromInt(3)); !got.Equal(decimal.NewFromInt(3)) {
		t.Errorf("getEnvDecimal() = %s, want 3", got)
	}
	if got := getEnvList("TEST_LIST", []string{"a"}); len(got) != 1 || got[0] != "a" {
		t.Errorf("getEnvList() = %v, want [a]", got)
	}
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	want := "host=db port=5433 user=u password=p dbname=n sslmode=disable"
	if got := d.ConnectionString(); got != want {
		t.Errorf("ConnectionString() = %q, want %q", got, want)
	}
}
