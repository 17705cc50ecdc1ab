package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Mongo       MongoConfig
	PayU        PayUConfig
	Email       EmailConfig
	UserService ServiceConfig
	Auth        AuthConfig
	Pricing     PricingConfig
	Features    FeatureFlags
}

type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

func (d DatabaseConfig) ConnectionString() string {
	return "host=" + d.Host +
		" port=" + strconv.Itoa(d.Port) +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.Name +
		" sslmode=" + d.SSLMode
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	TTL      time.Duration
}

type KafkaConfig struct {
	Brokers          []string
	OrdersTopic      string
	EmailTopic       string
	ConsumerGroup    string
	MaxEmailAttempts int
}

type MongoConfig struct {
	URI                     string
	Database                string
	NotificationsCollection string
}

// PayUConfig holds the merchant credentials and redirect URLs for the gateway.
type PayUConfig struct {
	MerchantKey     string
	Salt            string
	Environment     string
	SuccessURL      string
	FailureURL      string
	CancelURL       string
	ServiceProvider string
	TxnPrefix       string
}

type EmailConfig struct {
	Provider             string
	Delivery             string
	From                 string
	FromName             string
	SendGridAPIKey       string
	PostmarkServerToken  string
	PostmarkAccountToken string
	SendTimeout          time.Duration
}

type ServiceConfig struct {
	BaseURL string
	Timeout time.Duration
	APIKey  string
}

type AuthConfig struct {
	JWTSecret string
}

// PricingConfig is the server-side tax and shipping policy.
type PricingConfig struct {
	TaxRate                decimal.Decimal
	DeliveryChargePerLine  decimal.Decimal
	PackagingChargePerUnit decimal.Decimal
}

type FeatureFlags struct {
	EnableOrderCaching bool
	EnableOrderEvents  bool
}

const (
	EmailDeliveryDirect = "direct"
	EmailDeliveryQueue  = "queue"
)

// Load reads configuration from the environment, after applying an optional .env file.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:            getEnvInt("SERVER_PORT", 8082),
			ReadTimeout:     time.Duration(getEnvInt("SERVER_READ_TIMEOUT", 30)) * time.Second,
			WriteTimeout:    time.Duration(getEnvInt("SERVER_WRITE_TIMEOUT", 30)) * time.Second,
			ShutdownTimeout: time.Duration(getEnvInt("SERVER_SHUTDOWN_TIMEOUT", 30)) * time.Second,
		},
		Database: DatabaseConfig{
			Host:         getEnvString("DB_HOST", "localhost"),
			Port:         getEnvInt("DB_PORT", 5432),
			User:         getEnvString("DB_USER", "acme"),
			Password:     getEnvString("DB_PASSWORD", "acme"),
			Name:         getEnvString("DB_NAME", "acme_checkout"),
			SSLMode:      getEnvString("DB_SSLMODE", "disable"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		Redis: RedisConfig{
			Host:     getEnvString("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			TTL:      time.Duration(getEnvInt("REDIS_TTL_SECONDS", 300)) * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:          getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			OrdersTopic:      getEnvString("KAFKA_ORDERS_TOPIC", "orders"),
			EmailTopic:       getEnvString("KAFKA_EMAIL_TOPIC", "checkout.emails"),
			ConsumerGroup:    getEnvString("KAFKA_CONSUMER_GROUP", "checkout-service"),
			MaxEmailAttempts: getEnvInt("KAFKA_EMAIL_MAX_ATTEMPTS", 5),
		},
		Mongo: MongoConfig{
			URI:                     getEnvString("MONGO_URI", "mongodb://localhost:27017"),
			Database:                getEnvString("MONGO_DATABASE", "megabasket"),
			NotificationsCollection: getEnvString("MONGO_NOTIFICATIONS_COLLECTION", "notifications"),
		},
		PayU: PayUConfig{
			MerchantKey:     getEnvString("PAYU_MERCHANT_KEY", ""),
			Salt:            getEnvString("PAYU_SALT", ""),
			Environment:     getEnvString("PAYU_ENV", "sandbox"),
			SuccessURL:      getEnvString("PAYU_SUCCESS_URL", "http://localhost:8082/api/payments/payu/callback"),
			FailureURL:      getEnvString("PAYU_FAILURE_URL", "http://localhost:8082/api/payments/payu/callback"),
			CancelURL:       getEnvString("PAYU_CANCEL_URL", "http://localhost:8082/api/payments/payu/callback"),
			ServiceProvider: getEnvString("PAYU_SERVICE_PROVIDER", "payu_paisa"),
			TxnPrefix:       getEnvString("PAYU_TXN_PREFIX", "MB"),
		},
		Email: EmailConfig{
			Provider:             getEnvString("EMAIL_PROVIDER", "log"),
			Delivery:             getEnvString("EMAIL_DELIVERY", EmailDeliveryDirect),
			From:                 getEnvString("EMAIL_SENDER", "orders@megabasket.example"),
			FromName:             getEnvString("EMAIL_SENDER_NAME", "MegaBasket"),
			SendGridAPIKey:       getEnvString("SENDGRID_API_KEY", ""),
			PostmarkServerToken:  getEnvString("POSTMARK_API_TOKEN", ""),
			PostmarkAccountToken: getEnvString("POSTMARK_ACCOUNT_TOKEN", ""),
			SendTimeout:          time.Duration(getEnvInt("EMAIL_SEND_TIMEOUT", 15)) * time.Second,
		},
		UserService: ServiceConfig{
			BaseURL: getEnvString("USER_SERVICE_URL", "http://localhost:8081"),
			Timeout: time.Duration(getEnvInt("USER_SERVICE_TIMEOUT", 10)) * time.Second,
			APIKey:  getEnvString("USER_SERVICE_API_KEY", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnvString("JWT_SECRET", ""),
		},
		Pricing: PricingConfig{
			TaxRate:                getEnvDecimal("PRICING_TAX_RATE", decimal.RequireFromString("0.03")),
			DeliveryChargePerLine:  getEnvDecimal("PRICING_DELIVERY_PER_LINE", decimal.NewFromInt(35)),
			PackagingChargePerUnit: getEnvDecimal("PRICING_PACKAGING_PER_UNIT", decimal.NewFromInt(10)),
		},
		Features: FeatureFlags{
			EnableOrderCaching: getEnvBool("FEATURE_ORDER_CACHING", true),
			EnableOrderEvents:  getEnvBool("FEATURE_ORDER_EVENTS", true),
		},
	}
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
