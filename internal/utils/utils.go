package utils

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/purview-catalog-tools/pkg/models"
)

// EnvPrefix is the prefix shared by all catalog environment variables
const EnvPrefix = "PURVIEW_"

// secretVars are masked when the environment is dumped at debug level
var secretVars = map[string]bool{
	"AZURE_CLIENT_SECRET": true,
	"PURVIEW_TOKEN":       true,
	"MYSQL_PASSWORD":      true,
}

// SetupLogging configures the logging system
func SetupLogging(logLevel string) *logrus.Logger {
	// Create a new logger
	logger := logrus.New()

	// Get log level from environment variable or parameter
	levelStr := logLevel
	if levelStr == "" {
		levelStr = os.Getenv("PURVIEW_LOG_LEVEL")
		if levelStr == "" {
			levelStr = "info"
		}
	}

	// Parse log level
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}

	// Configure logger
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetOutput(os.Stdout)

	logger.Debugf("Logging configured with level: %s", level)
	return logger
}

// LoadEnvironmentVariables loads environment variables from .env file
func LoadEnvironmentVariables(envFile string, logger *logrus.Logger) bool {
	// Check if a sample .env file exists but not the actual .env file
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		sampleEnvFile := envFile + ".sample"
		if _, err := os.Stat(sampleEnvFile); err == nil {
			logger.Infof("No %s file found, but %s exists. Consider copying %s to %s and updating it.",
				envFile, sampleEnvFile, sampleEnvFile, envFile)
		}
	}

	// Load environment variables from .env file if it exists
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			logger.Warningf("Error loading %s file: %v", envFile, err)
		} else {
			logger.Infof("Loaded environment variables from %s", envFile)
		}
	} else {
		logger.Debugf("No %s file found, using existing environment variables", envFile)
	}

	// A static token replaces the client credentials entirely
	requiredVars := []string{"PURVIEW_ACCOUNT", "AZURE_TENANT_ID", "AZURE_CLIENT_ID", "AZURE_CLIENT_SECRET"}
	if os.Getenv("PURVIEW_TOKEN") != "" {
		requiredVars = []string{"PURVIEW_ACCOUNT"}
	}

	var missingVars []string
	for _, v := range requiredVars {
		if os.Getenv(v) == "" {
			missingVars = append(missingVars, v)
		}
	}

	if len(missingVars) > 0 {
		logger.Warningf("Missing required environment variables: %s", strings.Join(missingVars, ", "))
		logger.Info("These can be provided via command line arguments, environment variables, or a .env file")
		return false
	}

	// Log all available PURVIEW_* / AZURE_* environment variables (for debugging)
	if logger.Level == logrus.DebugLevel {
		for _, env := range os.Environ() {
			if !strings.HasPrefix(env, EnvPrefix) && !strings.HasPrefix(env, "AZURE_") {
				continue
			}
			parts := strings.SplitN(env, "=", 2)
			if len(parts) != 2 {
				continue
			}
			if secretVars[parts[0]] {
				logger.Debugf("%s=********", parts[0])
			} else {
				logger.Debugf("%s=%s", parts[0], parts[1])
			}
		}
	}

	return true
}

// GetEnvInt gets an integer value from environment variable
func GetEnvInt(varName string, defaultValue int) int {
	value := os.Getenv(varName)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

// GetEnvOrDefault gets an environment variable or returns a default value
func GetEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

// PrintRunSummary prints the counters and errors accumulated during a run
func PrintRunSummary(summary models.RunSummary) {
	fmt.Println("\n" + strings.Repeat("=", 50))
	fmt.Printf("%s SUMMARY\n", strings.ToUpper(summary.Name))
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Run ID: %s\n", summary.RunID)
	fmt.Printf("Duration: %s\n", summary.FinishedAt.Sub(summary.StartedAt).Round(1e6))

	// Counters in stable order
	keys := make([]string, 0, len(summary.Counts))
	for k := range summary.Counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%s: %d\n", k, summary.Counts[k])
	}

	fmt.Printf("Errors: %d\n", len(summary.Errors))
	if len(summary.Errors) > 0 {
		fmt.Println("\nErrors:")
		for _, e := range summary.Errors {
			fmt.Printf("  - [%s] %s: %s\n", e.Stage, e.ItemKey, e.Cause)
		}
	}

	fmt.Println(strings.Repeat("=", 50))
}

// ToSnakeCase lowercases s and joins its words with underscores
func ToSnakeCase(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	return strings.Join(fields, "_")
}
