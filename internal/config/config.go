package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIURL               string
	WSURL                string
	RequestTimeout       time.Duration
	HealthInterval       time.Duration
	HealthTimeout        time.Duration
	ReconnectDelay       time.Duration
	ReconnectMaxDelay    time.Duration
	ReconnectBackoff     float64
	ReconnectMaxAttempts int
	VitalsHistorySize    int
	AcknowledgedBy       string
	DBPath               string
	LogLevel             string
	LogFile              string
	LogToConsole         bool
	DashboardAddr        string
	MQTTBroker           string
	MQTTClientID         string
	MQTTUsername         string
	MQTTPassword         string
	KafkaBrokers         string
	AlertEventsTopic     string
}

func LoadConfig() *Config {
	err := godotenv.Load() // Looks for ".env" in the current directory
	if err != nil {
		log.Println("No .env file found, using environment variables or default values")
	}

	apiURL := strings.TrimRight(getEnv("API_URL", "http://localhost:8000"), "/")
	wsURL := strings.TrimRight(getEnv("WS_URL", ""), "/")
	if wsURL == "" {
		wsURL = StreamURLFromAPI(apiURL)
	}

	return &Config{
		APIURL:               apiURL,
		WSURL:                wsURL,
		RequestTimeout:       getEnvDuration("REQUEST_TIMEOUT", 15*time.Second),
		HealthInterval:       getEnvDuration("HEALTH_INTERVAL", 30*time.Second),
		HealthTimeout:        getEnvDuration("HEALTH_TIMEOUT", 5*time.Second),
		ReconnectDelay:       getEnvDuration("RECONNECT_DELAY", 3*time.Second),
		ReconnectMaxDelay:    getEnvDuration("RECONNECT_MAX_DELAY", 30*time.Second),
		ReconnectBackoff:     getEnvFloat("RECONNECT_BACKOFF", 2.0),
		ReconnectMaxAttempts: getEnvInt("RECONNECT_MAX_ATTEMPTS", 20),
		VitalsHistorySize:    getEnvInt("VITALS_HISTORY_SIZE", 20),
		AcknowledgedBy:       getEnv("ACKNOWLEDGED_BY", "clinical_staff"),
		DBPath:               getEnv("DB_PATH", "aetheris.db"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFile:              getEnv("LOG_FILE", "./logs/aetheris.log"),
		LogToConsole:         strings.EqualFold(getEnv("LOG_TO_CONSOLE", "false"), "true"),
		DashboardAddr:        getEnv("DASHBOARD_ADDR", ":8080"),
		MQTTBroker:           getEnv("MQTT_BROKER_URL", ""),
		MQTTClientID:         getEnv("MQTT_CLIENT_ID", "aetheris-dashboard"),
		MQTTUsername:         getEnv("MQTT_USERNAME", ""),
		MQTTPassword:         getEnv("MQTT_PASSWORD", ""),
		KafkaBrokers:         getEnv("KAFKA_BROKERS", ""),
		AlertEventsTopic:     getEnv("ALERT_EVENTS_TOPIC", "aetheris-alert-events"),
	}
}

// StreamURLFromAPI swaps the http(s) scheme of the REST base for ws(s).
func StreamURLFromAPI(apiURL string) string {
	if strings.HasPrefix(apiURL, "http") {
		return "ws" + strings.TrimPrefix(apiURL, "http")
	}
	return apiURL
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("Invalid duration for %s (%q), using %s", key, raw, fallback)
		return fallback
	}
	return d
}

func getEnvInt(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("Invalid integer for %s (%q), using %d", key, raw, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("Invalid number for %s (%q), using %g", key, raw, fallback)
		return fallback
	}
	return f
}
