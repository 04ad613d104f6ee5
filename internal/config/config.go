// Package config handles loading and validation of service configuration.
// Supports both development (env vars) and production (Secret Manager) modes.
package config

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Collection backends.
const (
	BackendREST      = "rest"
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
)

const (
	defaultSecretID  = "storefront-backend"
	defaultNamespace = "storefront"
	storeKeySize     = 32
)

// Config holds all service configuration.
// Environment determines whether backend credentials load from env vars
// (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject string
	SecretID   string

	// Namespace prefixes every local storage key.
	Namespace string

	// CollectionBackend selects where signed-in carts and wishlists live:
	// "rest" (hosted row API), "postgres" or "firestore".
	CollectionBackend string

	// LocalStorePath is the SQLite file for durable local state.
	// Empty keeps everything in memory.
	LocalStorePath string

	// RealtimeURL enables the change feed when set.
	RealtimeURL string

	// ChromeTLS presents a browser TLS fingerprint to the backend.
	ChromeTLS bool

	// MergeRate limits guest-to-user merge upserts per second. Zero uses the
	// reconciler default.
	MergeRate  float64
	MergeBurst int

	// Backend credentials (from env or Secret Manager)
	Backend BackendConfig
}

// BackendConfig holds backend credentials and connection settings.
// In production these load from a Secret Manager JSON payload.
type BackendConfig struct {
	URL              string `json:"url" toml:"url" yaml:"url"`
	AnonKey          string `json:"anon_key" toml:"anon_key" yaml:"anon_key"`
	DatabaseURL      string `json:"database_url,omitempty" toml:"database_url" yaml:"database_url"`
	FirestoreProject string `json:"firestore_project,omitempty" toml:"firestore_project" yaml:"firestore_project"`

	// LocalStoreKey is a hex-encoded 32-byte key sealing local state at rest.
	LocalStoreKey string `json:"local_store_key,omitempty" toml:"local_store_key" yaml:"local_store_key"`
}

// fileConfig matches the CONFIG_FILE structure in every supported format.
type fileConfig struct {
	Port              string        `json:"port" toml:"port" yaml:"port"`
	Environment       string        `json:"environment" toml:"environment" yaml:"environment"`
	LogLevel          string        `json:"log_level" toml:"log_level" yaml:"log_level"`
	Namespace         string        `json:"namespace" toml:"namespace" yaml:"namespace"`
	CollectionBackend string        `json:"collection_backend" toml:"collection_backend" yaml:"collection_backend"`
	LocalStorePath    string        `json:"local_store_path" toml:"local_store_path" yaml:"local_store_path"`
	RealtimeURL       string        `json:"realtime_url" toml:"realtime_url" yaml:"realtime_url"`
	ChromeTLS         bool          `json:"chrome_tls" toml:"chrome_tls" yaml:"chrome_tls"`
	MergeRate         float64       `json:"merge_rate" toml:"merge_rate" yaml:"merge_rate"`
	MergeBurst        int           `json:"merge_burst" toml:"merge_burst" yaml:"merge_burst"`
	Backend           BackendConfig `json:"backend" toml:"backend" yaml:"backend"`
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// Validates all required fields and returns an error if any are missing.
func Load(ctx context.Context) (*Config, error) {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg := &Config{
		Port:              envOrDefault("PORT", "8080"),
		Environment:       envOrDefault("ENVIRONMENT", "development"),
		LogLevel:          envOrDefault("LOG_LEVEL", "info"),
		GCPProject:        os.Getenv("GCP_PROJECT"),
		SecretID:          envOrDefault("BACKEND_SECRET_ID", defaultSecretID),
		Namespace:         envOrDefault("STORAGE_NAMESPACE", defaultNamespace),
		CollectionBackend: envOrDefault("COLLECTION_BACKEND", BackendREST),
		LocalStorePath:    os.Getenv("LOCAL_STORE_PATH"),
		RealtimeURL:       os.Getenv("REALTIME_URL"),
	}

	var err error
	if cfg.ChromeTLS, err = envBool("CHROME_TLS"); err != nil {
		return nil, err
	}
	if v := os.Getenv("MERGE_RATE"); v != "" {
		if cfg.MergeRate, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("parsing MERGE_RATE: %w", err)
		}
	}
	if v := os.Getenv("MERGE_BURST"); v != "" {
		if cfg.MergeBurst, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("parsing MERGE_BURST: %w", err)
		}
	}

	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		err = cfg.loadFromSecretManager(ctx)
	} else {
		cfg.loadFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("loading backend config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile reads all configuration from a JSON, TOML or YAML file,
// chosen by extension. Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, &fc)
	case ".toml":
		err = toml.Unmarshal(data, &fc)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		return nil, fmt.Errorf("unsupported config file extension %q (json, toml, yaml)", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:              withDefault(fc.Port, "8080"),
		Environment:       withDefault(fc.Environment, "development"),
		LogLevel:          withDefault(fc.LogLevel, "info"),
		Namespace:         fc.Namespace,
		CollectionBackend: fc.CollectionBackend,
		LocalStorePath:    fc.LocalStorePath,
		RealtimeURL:       fc.RealtimeURL,
		ChromeTLS:         fc.ChromeTLS,
		MergeRate:         fc.MergeRate,
		MergeBurst:        fc.MergeBurst,
		Backend:           fc.Backend,
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// loadFromSecretManager fetches backend config from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{secret_id}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.SecretID)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	if err := json.Unmarshal(result.Payload.Data, &c.Backend); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}

	return nil
}

// loadFromEnv reads backend config from individual environment variables.
// Used in development mode for local testing.
func (c *Config) loadFromEnv() {
	c.Backend = BackendConfig{
		URL:              os.Getenv("BACKEND_URL"),
		AnonKey:          os.Getenv("BACKEND_ANON_KEY"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		FirestoreProject: os.Getenv("FIRESTORE_PROJECT"),
		LocalStoreKey:    os.Getenv("LOCAL_STORE_KEY"),
	}
}

func (c *Config) applyDefaults() {
	if c.Namespace == "" {
		c.Namespace = defaultNamespace
	}
	if c.CollectionBackend == "" {
		c.CollectionBackend = BackendREST
	}
	if c.Backend.FirestoreProject == "" {
		c.Backend.FirestoreProject = c.GCPProject
	}
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	// Auth always goes through the hosted backend.
	if c.Backend.URL == "" {
		return fmt.Errorf("backend url is required")
	}
	if _, err := url.Parse(c.Backend.URL); err != nil {
		return fmt.Errorf("invalid backend url: %w", err)
	}
	if c.Backend.AnonKey == "" {
		return fmt.Errorf("backend anon_key is required")
	}

	switch c.CollectionBackend {
	case BackendREST:
	case BackendPostgres:
		if c.Backend.DatabaseURL == "" {
			return fmt.Errorf("database_url is required for postgres collection backend")
		}
	case BackendFirestore:
		if c.Backend.FirestoreProject == "" {
			return fmt.Errorf("firestore_project is required for firestore collection backend")
		}
	default:
		return fmt.Errorf("unknown collection backend %q (rest, postgres or firestore)", c.CollectionBackend)
	}

	if c.RealtimeURL != "" {
		if _, err := url.Parse(c.RealtimeURL); err != nil {
			return fmt.Errorf("invalid realtime_url: %w", err)
		}
	}
	if c.MergeRate < 0 || c.MergeBurst < 0 {
		return fmt.Errorf("merge_rate and merge_burst must not be negative")
	}
	if _, err := c.StoreKey(); err != nil {
		return err
	}
	return nil
}

// StoreKey decodes the local store sealing key. Returns nil when no key is
// configured.
func (c *Config) StoreKey() ([]byte, error) {
	if c.Backend.LocalStoreKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.Backend.LocalStoreKey)
	if err != nil {
		return nil, fmt.Errorf("invalid local_store_key: %w", err)
	}
	if len(key) != storeKeySize {
		return nil, fmt.Errorf("local_store_key must be %d bytes, got %d", storeKeySize, len(key))
	}
	return key, nil
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func envBool(key string) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s: %w", key, err)
	}
	return b, nil
}
