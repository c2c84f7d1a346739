package config // package config loads application configuration from environment variables

import (
    "log"     // log is used to report configuration errors and halt execution
    "os"      // os provides access to environment variables
    "strconv" // strconv converts strings to other types
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The types reflect how the values are used in
// the application: strings for identifiers and secrets, ints for durations
// and costs.  Credentials for the external collaborators (Cloudinary, SMTP,
// RabbitMQ) are optional; the features they back degrade when absent.
type Config struct {
    Env            string // application environment (e.g. "dev", "prod")
    Port           string // HTTP port to listen on
    BaseURL        string // public base URL used in confirmation links
    DBUser         string // database username
    DBPass         string // database password (optional)
    DBHost         string // database host address
    DBPort         string // database port number
    DBName         string // database name
    JWTSecret      string // secret used to sign JWTs
    AccessTTLMin   int    // access token time-to-live in minutes
    RefreshTTLDays int    // refresh token time-to-live in days
    EmailTTLHours  int    // email confirmation token time-to-live in hours
    BcryptCost     int    // bcrypt cost for password hashing
    CloudName      string // Cloudinary cloud name (optional)
    CloudAPIKey    string // Cloudinary API key (optional)
    CloudAPISecret string // Cloudinary API secret (optional)
    SMTPHost       string // SMTP server host for confirmation mail (optional)
    SMTPPort       string // SMTP server port
    SMTPUser       string // SMTP username / sender address
    SMTPPass       string // SMTP password
    AMQPURL        string // RabbitMQ connection URL (optional, consumer has a default)
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
    return Config{
        Env:            must("APP_ENV"),      // environment (dev/test/prod)
        Port:           must("APP_PORT"),     // port to bind the HTTP server
        BaseURL:        getenvDefault("APP_BASE_URL", "http://localhost:8080"),
        DBUser:         must("DB_USER"),      // database user
        DBPass:         os.Getenv("DB_PASS"), // database password (empty allowed)
        DBHost:         must("DB_HOST"),      // database host
        DBPort:         must("DB_PORT"),      // database port
        DBName:         must("DB_NAME"),      // database name
        JWTSecret:      must("JWT_SECRET"),   // secret used for signing JWTs
        AccessTTLMin:   intDefault("ACCESS_TOKEN_TTL_MIN", 15),
        RefreshTTLDays: intDefault("REFRESH_TOKEN_TTL_DAYS", 7),
        EmailTTLHours:  intDefault("EMAIL_TOKEN_TTL_HOURS", 24),
        BcryptCost:     mustInt("BCRYPT_COST"), // bcrypt cost factor
        CloudName:      os.Getenv("CLD_NAME"),
        CloudAPIKey:    os.Getenv("CLD_API_KEY"),
        CloudAPISecret: os.Getenv("CLD_API_SECRET"),
        SMTPHost:       os.Getenv("SMTP_HOST"),
        SMTPPort:       getenvDefault("SMTP_PORT", "587"),
        SMTPUser:       os.Getenv("SMTP_USER"),
        SMTPPass:       os.Getenv("SMTP_PASS"),
        AMQPURL:        os.Getenv("RABBITMQ_URL"),
    }
}

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

// intDefault reads an optional integer variable, falling back to def when it
// is unset.  A set but malformed value is still a configuration error.
func intDefault(key string, def int) int {
    v := os.Getenv(key)
    if v == "" {
        return def
    }
    n, err := strconv.Atoi(v)
    if err != nil {
        log.Fatalf("invalid int for %s: %q", key, v)
    }
    return n
}

func getenvDefault(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}
