// Package config provides configuration management for the application.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the application.
type Config struct {
	// AWS
	AWSRegion string
	S3Bucket  string

	// Database (optional snapshot persistence)
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string

	// SES
	SESSenderEmail string
	CaseInboxEmail string

	// Policy seeds — the policy store reads these once at startup.
	MatchingMode          string
	AmountTolerancePct    float64
	PriceTolerancePct     float64
	OverInvoicePct        float64
	TaxTolerancePct       float64
	GRNQtyTolerancePct    float64
	GRNAmountTolerancePct float64
	ShortShipmentPct      float64
	DuplicateWindowDays   int
	DuplicateAmountTolPct float64
	HighSeverityPct       float64
	MedSeverityPct        float64
	AutoApproveConfidence float64
	AutoApproveMaxRisk    float64
	BlockMinVendorRisk    float64
	HighRiskThreshold     float64
	MedRiskThreshold      float64
	RiskTighteningFactor  float64
	MaxInvoiceAgeDays     int
	FlagRoundNumbers      bool
	FlagWeekendInvoices   bool

	// Application
	Stage    string
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	_ = godotenv.Load()

	cfg := &Config{
		// AWS
		AWSRegion: getEnv("AWS_REGION", "us-east-1"),
		S3Bucket:  getEnv("S3_BUCKET", "invoice-audit-uploads-dev"),

		// Database
		DBHost:     getEnv("DB_HOST", getEnv("AUDIT_DB_HOST", "localhost")),
		DBPort:     getEnvInt("DB_PORT", getEnvInt("AUDIT_DB_PORT", 5432)),
		DBName:     getEnv("DB_NAME", getEnv("AUDIT_DB_NAME", "invoice_audit")),
		DBUser:     getEnv("DB_USER", getEnv("AUDIT_DB_USER", "postgres")),
		DBPassword: getEnv("DB_PASSWORD", getEnv("AUDIT_DB_PASSWORD", "")),

		// SES
		SESSenderEmail: getEnv("SES_SENDER_EMAIL", ""),
		CaseInboxEmail: getEnv("CASE_INBOX_EMAIL", ""),

		// Policy seeds
		MatchingMode:          getEnv("MATCHING_MODE", "flexible"),
		AmountTolerancePct:    getEnvFloat("AMOUNT_TOLERANCE_PCT", 2),
		PriceTolerancePct:     getEnvFloat("PRICE_TOLERANCE_PCT", 1),
		OverInvoicePct:        getEnvFloat("OVER_INVOICE_PCT", 2),
		TaxTolerancePct:       getEnvFloat("TAX_TOLERANCE_PCT", 5),
		GRNQtyTolerancePct:    getEnvFloat("GRN_QTY_TOLERANCE_PCT", 2),
		GRNAmountTolerancePct: getEnvFloat("GRN_AMT_TOLERANCE_PCT", 2),
		ShortShipmentPct:      getEnvFloat("SHORT_SHIPMENT_PCT", 90),
		DuplicateWindowDays:   getEnvInt("DUPLICATE_WINDOW_DAYS", 90),
		DuplicateAmountTolPct: getEnvFloat("DUP_AMT_TOLERANCE", 2),
		HighSeverityPct:       getEnvFloat("HIGH_SEVERITY_PCT", 10),
		MedSeverityPct:        getEnvFloat("MED_SEVERITY_PCT", 5),
		AutoApproveConfidence: getEnvFloat("TRIAGE_AUTO_APPROVE_CONFIDENCE", 85),
		AutoApproveMaxRisk:    getEnvFloat("TRIAGE_AUTO_APPROVE_MAX_RISK", 50),
		BlockMinVendorRisk:    getEnvFloat("TRIAGE_BLOCK_MIN_RISK_SCORE", 70),
		HighRiskThreshold:     getEnvFloat("HIGH_RISK_THRESHOLD", 65),
		MedRiskThreshold:      getEnvFloat("MED_RISK_THRESHOLD", 35),
		RiskTighteningFactor:  getEnvFloat("RISK_TOLERANCE_TIGHTENING", 0.5),
		MaxInvoiceAgeDays:     getEnvInt("MAX_INVOICE_AGE_DAYS", 365),
		FlagRoundNumbers:      getEnvBool("FLAG_ROUND_NUMBER_INVOICES", false),
		FlagWeekendInvoices:   getEnvBool("FLAG_WEEKEND_INVOICES", false),

		// Application
		Stage:    getEnv("STAGE", "dev"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// DatabaseURL returns the PostgreSQL connection string.
func (c *Config) DatabaseURL() string {
	sslMode := "require" // Use SSL for RDS
	if c.DBHost == "localhost" || c.DBHost == "127.0.0.1" {
		sslMode = "disable" // Disable SSL for local development
	}
	return "postgres://" + c.DBUser + ":" + c.DBPassword + "@" + c.DBHost + ":" + strconv.Itoa(c.DBPort) + "/" + c.DBName + "?sslmode=" + sslMode
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as int or returns a default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat retrieves an environment variable as float64 or returns a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvBool retrieves an environment variable as bool or returns a default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
