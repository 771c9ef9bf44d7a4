package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"time"
)

// Config holds the core runtime configuration values.  Each field
// corresponds to an environment variable; concern-specific settings
// (cache, rate limit, Redis, RabbitMQ, external DB, object storage) have
// their own loaders in this package.
type Config struct {
	Env            string        // application environment (e.g. "dev", "prod")
	Port           string        // HTTP port to listen on
	DBUser         string        // database username
	DBPass         string        // database password (optional)
	DBHost         string        // database host address
	DBPort         string        // database port number
	DBName         string        // database name
	SessionSecret  string        // secret used to sign session JWTs
	SessionTTL     time.Duration // sliding session lifetime
	CookieSecure   bool          // mark the session cookie Secure
	BcryptCost     int           // bcrypt cost for password hashing
	StrictRoles    bool          // reject unknown role names at registration
	LogLevel       string        // zerolog level name
	RequestTimeout time.Duration // per-request database timeout
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	return Config{
		Env:            must("APP_ENV"),                              // environment (dev/test/prod)
		Port:           must("APP_PORT"),                             // port to bind the HTTP server
		DBUser:         must("DB_USER"),                              // database user
		DBPass:         os.Getenv("DB_PASS"),                         // database password (empty allowed)
		DBHost:         must("DB_HOST"),                              // database host
		DBPort:         must("DB_PORT"),                              // database port
		DBName:         must("DB_NAME"),                              // database name
		SessionSecret:  must("SESSION_SECRET"),                       // secret used for signing sessions
		SessionTTL:     envDur("SESSION_TTL", 8*time.Hour),           // sliding expiration
		CookieSecure:   envBool("COOKIE_SECURE", false),              // Secure flag on the cookie
		BcryptCost:     mustInt("BCRYPT_COST"),                       // bcrypt cost factor
		StrictRoles:    envBool("STRICT_ROLE_ASSIGNMENT", false),     // unknown role -> error
		LogLevel:       envStr("LOG_LEVEL", "info"),                  // log verbosity
		RequestTimeout: envDur("REQUEST_TIMEOUT", 5*time.Second),     // db timeout per request
	}
}

// IsDev reports whether the application runs in a development environment.
func (c Config) IsDev() bool { return c.Env == "dev" || c.Env == "development" }

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an integer.
// If conversion fails, the application logs a fatal error and exits.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}
