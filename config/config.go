package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment
// variables. Both binaries load the same struct; each uses the slice of
// fields relevant to its role.
type Config struct {
	// Instrument
	Symbol   string
	Interval string
	Asset    string

	// Binance credentials (executor only; the kline stream is public)
	BinanceAPIKey    string
	BinanceAPISecret string
	BinanceTestnet   bool
	PaperTrading     bool
	PaperBalance     float64

	// Risk parameters
	CapitalFraction float64
	Leverage        int
	TakeProfitROI   float64
	StopLossROI     float64

	// Indicator window
	WindowCapacity  int
	EMAPeriod       int
	RSIPeriod       int
	StochPeriod     int
	StochKPeriod    int
	StochDPeriod    int
	BBPeriod        int
	BBStdDev        float64
	CCIPeriod       int
	OversoldLevel   float64
	OverboughtLevel float64

	// Executor link
	ExecutorURL       string // initiator side: ws://host:port/link
	ListenAddr        string // acceptor side
	HeartbeatInterval time.Duration
	AckTimeout        time.Duration
	ActivityTimeout   time.Duration
	PendingTimeout    time.Duration

	// Snapshot polling
	WalletPollInterval   time.Duration
	PositionPollInterval time.Duration

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	MetricsAddr   string

	// Notifications
	WebhookURL       string
	TelegramBotToken string
	TelegramChatID   string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Symbol:   getEnv("SYMBOL", "BTCUSDT"),
		Interval: getEnv("INTERVAL", "1m"),
		Asset:    getEnv("ASSET", "USDT"),

		BinanceAPIKey:    getEnv("BINANCE_API_KEY", ""),
		BinanceAPISecret: getEnv("BINANCE_API_SECRET", ""),
		BinanceTestnet:   getBool("BINANCE_TESTNET", false),
		PaperTrading:     getBool("PAPER_TRADING", false),
		PaperBalance:     getFloat("PAPER_BALANCE", 1000),

		CapitalFraction: getFloat("CAPITAL_FRACTION", 0.10),
		Leverage:        getInt("LEVERAGE", 5),
		TakeProfitROI:   getFloat("TAKE_PROFIT_ROI", 0.03),
		StopLossROI:     getFloat("STOP_LOSS_ROI", 0.015),

		WindowCapacity:  getInt("WINDOW_CAPACITY", 100),
		EMAPeriod:       getInt("EMA_PERIOD", 200),
		RSIPeriod:       getInt("RSI_PERIOD", 14),
		StochPeriod:     getInt("STOCH_PERIOD", 14),
		StochKPeriod:    getInt("STOCH_K_PERIOD", 3),
		StochDPeriod:    getInt("STOCH_D_PERIOD", 3),
		BBPeriod:        getInt("BB_PERIOD", 20),
		BBStdDev:        getFloat("BB_STDDEV", 2.0),
		CCIPeriod:       getInt("CCI_PERIOD", 20),
		OversoldLevel:   getFloat("OVERSOLD_LEVEL", 20),
		OverboughtLevel: getFloat("OVERBOUGHT_LEVEL", 80),

		ExecutorURL:       getEnv("EXECUTOR_URL", "ws://localhost:8090/link"),
		ListenAddr:        getEnv("LISTEN_ADDR", ":8090"),
		HeartbeatInterval: getDuration("HEARTBEAT_INTERVAL", 15*time.Second),
		AckTimeout:        getDuration("ACK_TIMEOUT", 25*time.Second),
		ActivityTimeout:   getDuration("ACTIVITY_TIMEOUT", 60*time.Second),
		PendingTimeout:    getDuration("PENDING_TIMEOUT", 30*time.Second),

		WalletPollInterval:   getDuration("WALLET_POLL_INTERVAL", 30*time.Second),
		PositionPollInterval: getDuration("POSITION_POLL_INTERVAL", 10*time.Second),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		WebhookURL:       getEnv("WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
	}
}

// RequireKeys aborts unless Binance credentials are present. The executor
// calls it when paper trading is off; the signal engine never needs keys.
func (c *Config) RequireKeys() {
	if c.BinanceAPIKey == "" {
		log.Fatalf("[config] required env var BINANCE_API_KEY not set")
	}
	if c.BinanceAPISecret == "" {
		log.Fatalf("[config] required env var BINANCE_API_SECRET not set")
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
