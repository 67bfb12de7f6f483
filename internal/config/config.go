package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/vitebski/purview-catalog-tools/internal/utils"
	"gopkg.in/yaml.v3"
)

// Write modes for lineage edges
const (
	WriteModeCreateOrSkip = "createOrSkip"
	WriteModeAlwaysCreate = "alwaysCreate"
)

// Config carries every per-run parameter of a catalog command
type Config struct {
	Account     string `yaml:"account" validate:"required"`
	Environment string `yaml:"environment" validate:"oneof=dv qa pd"`

	// Glossary term window, 1-based and inclusive
	StartIndex int `yaml:"start_index" validate:"gte=0"`
	EndIndex   int `yaml:"end_index" validate:"gtefield=StartIndex"`

	WriteMode string `yaml:"write_mode" validate:"oneof=createOrSkip alwaysCreate"`
	BatchSize int    `yaml:"batch_size" validate:"min=1,max=1000"`
	Workers   int    `yaml:"workers" validate:"min=1,max=32"`

	RateLimit   float64 `yaml:"rate_limit" validate:"gt=0"`
	Burst       int     `yaml:"burst" validate:"min=1"`
	MaxAttempts uint    `yaml:"max_attempts" validate:"min=1,max=10"`

	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"-"`
	Token        string `yaml:"-"`

	// Endpoint overrides the account-derived catalog URL (tests, sovereign clouds)
	Endpoint string `yaml:"endpoint" validate:"omitempty,url"`

	SummaryFile string `yaml:"summary_file"`

	Servers []ServerOverride `yaml:"servers" validate:"dive"`
}

// ServerOverride adds or replaces a qualified-name server mapping
type ServerOverride struct {
	Names          []string `yaml:"names" validate:"required,min=1"`
	Protocol       string   `yaml:"protocol" validate:"required,oneof=mssql oracle mysql"`
	Host           string   `yaml:"host" validate:"required"`
	Instance       string   `yaml:"instance"`
	SchemaOverride string   `yaml:"schema_override"`
	SchemaSuffix   string   `yaml:"schema_suffix"`
}

// Default returns the configuration used when nothing is specified
func Default() *Config {
	return &Config{
		Environment: "pd",
		StartIndex:  1,
		EndIndex:    250,
		WriteMode:   WriteModeCreateOrSkip,
		BatchSize:   100,
		Workers:     1,
		RateLimit:   10,
		Burst:       5,
		MaxAttempts: 5,
	}
}

// Load reads an optional YAML file on top of the defaults, then applies
// environment variables
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading config file %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parsing config file %s", path)
		}
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides fields with their environment variables when set
func (c *Config) ApplyEnv() {
	c.Account = utils.GetEnvOrDefault("PURVIEW_ACCOUNT", c.Account)
	c.Environment = utils.GetEnvOrDefault("PURVIEW_ENV", c.Environment)
	c.WriteMode = utils.GetEnvOrDefault("PURVIEW_WRITE_MODE", c.WriteMode)
	c.Endpoint = utils.GetEnvOrDefault("PURVIEW_ENDPOINT", c.Endpoint)
	c.TenantID = utils.GetEnvOrDefault("AZURE_TENANT_ID", c.TenantID)
	c.ClientID = utils.GetEnvOrDefault("AZURE_CLIENT_ID", c.ClientID)
	c.ClientSecret = utils.GetEnvOrDefault("AZURE_CLIENT_SECRET", c.ClientSecret)
	c.Token = utils.GetEnvOrDefault("PURVIEW_TOKEN", c.Token)
	c.StartIndex = utils.GetEnvInt("PURVIEW_START_INDEX", c.StartIndex)
	c.EndIndex = utils.GetEnvInt("PURVIEW_END_INDEX", c.EndIndex)
	c.BatchSize = utils.GetEnvInt("PURVIEW_BATCH_SIZE", c.BatchSize)
	c.Workers = utils.GetEnvInt("PURVIEW_WORKERS", c.Workers)
}

// Validate checks field constraints and credential completeness
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return errors.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return errors.Wrap(err, "invalid configuration")
	}

	if c.Token == "" && (c.TenantID == "" || c.ClientID == "" || c.ClientSecret == "") {
		return errors.New("invalid configuration: either PURVIEW_TOKEN or tenant/client id/client secret must be set")
	}
	return nil
}

// CatalogEndpoint returns the base URL of the catalog data plane
func (c *Config) CatalogEndpoint() string {
	if c.Endpoint != "" {
		return strings.TrimRight(c.Endpoint, "/")
	}
	return fmt.Sprintf("https://%s.purview.azure.com", c.Account)
}

// ScanEndpoint returns the base URL of the scanning data plane
func (c *Config) ScanEndpoint() string {
	if c.Endpoint != "" {
		return strings.TrimRight(c.Endpoint, "/")
	}
	return fmt.Sprintf("https://%s.scan.purview.azure.com", c.Account)
}

// DWPrefix returns the data warehouse qualified-name prefix for the environment
func (c *Config) DWPrefix() string {
	return fmt.Sprintf("mssql://hbi-%s01-analytics-dwsrv.database.windows.net/hbi%s01dw/", c.Environment, c.Environment)
}
