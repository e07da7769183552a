package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds delivery simulator configuration.
type Config struct {
	ServerAddr string

	// ClientCode is the only client code the simulator answers for;
	// requests carrying any other code are rejected.
	ClientCode string

	// OffersPath points at the JSON offer catalog served per mbox.
	// Empty means the simulator starts with no offers.
	OffersPath string

	// StorePath is the file-backed session store location. Overridden
	// by DatabaseURL when both are set; empty with no DatabaseURL
	// keeps sessions in memory.
	StorePath string

	// DatabaseURL enables the postgres-backed session store.
	DatabaseURL string

	// EdgeHostHint is the cluster hint baked into issued tnt ids.
	EdgeHostHint string

	// ResponseDelay adds artificial latency to every delivery
	// response, for exercising client timeouts.
	ResponseDelay time.Duration

	LogRequestBodies bool
}

// Load reads configuration from environment.
func Load() (*Config, error) {
	clientCode := getenv("CLIENT_CODE", "")
	if clientCode == "" {
		return nil, fmt.Errorf("CLIENT_CODE is required")
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" && os.Getenv("POSTGRES_HOST") != "" {
		user := getenv("POSTGRES_USER", "deliverysim")
		pass := getenv("POSTGRES_PASSWORD", "deliverysim_pass")
		db := getenv("POSTGRES_DB", "deliverysim")
		host := getenv("POSTGRES_HOST", "localhost")
		port := getenv("POSTGRES_PORT", "5432")
		sslmode := getenv("DATABASE_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
	}

	return &Config{
		ServerAddr:       getenv("SERVER_ADDR", "0.0.0.0:8080"),
		ClientCode:       clientCode,
		OffersPath:       getenv("OFFERS_PATH", ""),
		StorePath:        getenv("STORE_PATH", ""),
		DatabaseURL:      dsn,
		EdgeHostHint:     getenv("EDGE_HOST_HINT", "35"),
		ResponseDelay:    parseDuration(getenv("RESPONSE_DELAY", "0s"), 0),
		LogRequestBodies: parseBool(getenv("LOG_REQUEST_BODIES", "false"), false),
	}, nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

func parseBool(val string, def bool) bool {
	if val == "" {
		return def
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return def
	}
	return b
}
