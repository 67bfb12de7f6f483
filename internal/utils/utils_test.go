package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestSetupLogging(t *testing.T) {
	// Test with default log level
	logger := SetupLogging("")
	if logger == nil {
		t.Error("Expected logger to be created, got nil")
	}

	// Test with specific log level
	logger = SetupLogging("debug")
	if logger.Level != logrus.DebugLevel {
		t.Errorf("Expected log level to be debug, got %s", logger.Level)
	}

	logger = SetupLogging("warn")
	if logger.Level != logrus.WarnLevel {
		t.Errorf("Expected log level to be warn, got %s", logger.Level)
	}

	// Test with invalid log level (should default to info)
	logger = SetupLogging("invalid")
	if logger.Level != logrus.InfoLevel {
		t.Errorf("Expected log level to be info for invalid input, got %s", logger.Level)
	}

	// Environment fallback
	t.Setenv("PURVIEW_LOG_LEVEL", "error")
	logger = SetupLogging("")
	if logger.Level != logrus.ErrorLevel {
		t.Errorf("Expected log level to be error from environment, got %s", logger.Level)
	}
}

func TestGetEnvInt(t *testing.T) {
	// Test with environment variable set
	t.Setenv("TEST_ENV_INT", "42")
	value := GetEnvInt("TEST_ENV_INT", 10)
	if value != 42 {
		t.Errorf("Expected value to be 42, got %d", value)
	}

	// Test with invalid integer
	t.Setenv("TEST_ENV_INT", "not-an-int")
	value = GetEnvInt("TEST_ENV_INT", 10)
	if value != 10 {
		t.Errorf("Expected value to be 10 (default) for invalid input, got %d", value)
	}

	// Test with environment variable not set
	os.Unsetenv("TEST_ENV_INT")
	value = GetEnvInt("TEST_ENV_INT", 10)
	if value != 10 {
		t.Errorf("Expected value to be 10 (default), got %d", value)
	}
}

func TestLoadEnvironmentVariables(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Suppress log output during tests

	for _, v := range []string{"PURVIEW_ACCOUNT", "AZURE_TENANT_ID", "AZURE_CLIENT_ID", "AZURE_CLIENT_SECRET", "PURVIEW_TOKEN"} {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}

	// Missing file and missing variables
	if LoadEnvironmentVariables(filepath.Join(t.TempDir(), ".env"), logger) {
		t.Error("Expected load to report missing variables")
	}

	// A .env file providing a static token is enough
	envFile := filepath.Join(t.TempDir(), ".env")
	content := "PURVIEW_ACCOUNT=test-pview\nPURVIEW_TOKEN=abc\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	if !LoadEnvironmentVariables(envFile, logger) {
		t.Error("Expected load to succeed with account and token set")
	}
	if os.Getenv("PURVIEW_ACCOUNT") != "test-pview" {
		t.Errorf("Expected PURVIEW_ACCOUNT to be loaded, got %q", os.Getenv("PURVIEW_ACCOUNT"))
	}
}

func TestToSnakeCase(t *testing.T) {
	cases := map[string]string{
		"Customer Name": "customer_name",
		"E-mail  Addr":  "e_mail_addr",
		"SSN":           "ssn",
	}
	for in, want := range cases {
		if got := ToSnakeCase(in); got != want {
			t.Errorf("ToSnakeCase(%q) = %q, want %q", in, got, want)
		}
	}
}
