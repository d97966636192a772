// Package config loads the catalog service configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pankajredekar/catalog/internal/models"
	"gopkg.in/yaml.v3"
)

// OAuthConfig describes the external identity provider registration
type OAuthConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	DiscoveryURL string `yaml:"discovery_url"`
	Scopes       string `yaml:"scopes"`
	CallbackPath string `yaml:"callback_path"`
}

// Config is the full service configuration
type Config struct {
	ListenAddr           string      `yaml:"listen_addr"`
	PublicURL            string      `yaml:"public_url"`
	DatabaseURL          string      `yaml:"database_url"`
	SecretKey            string      `yaml:"secret_key"`
	SessionExpireMinutes int         `yaml:"session_expire_minutes"`
	DemoCategories       string      `yaml:"demo_categories"`
	DemoItems            string      `yaml:"demo_items"`
	OAuth                OAuthConfig `yaml:"oauth"`
}

// LoadConfig reads and parses the configuration file, applying defaults
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Set defaults
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.PublicURL == "" {
		cfg.PublicURL = "http://localhost:8080"
	}
	if cfg.SessionExpireMinutes == 0 {
		cfg.SessionExpireMinutes = 60
	}
	if cfg.OAuth.DiscoveryURL == "" {
		cfg.OAuth.DiscoveryURL = "https://accounts.google.com/.well-known/openid-configuration"
	}
	if cfg.OAuth.Scopes == "" {
		cfg.OAuth.Scopes = "openid email"
	}
	if cfg.OAuth.CallbackPath == "" {
		cfg.OAuth.CallbackPath = "/oauth2callback"
	}

	return &cfg, nil
}

// Validate checks that the required settings are present
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required")
	}
	if c.SecretKey == "" {
		return fmt.Errorf("secret_key is required")
	}
	if !strings.HasPrefix(c.OAuth.CallbackPath, "/") {
		return fmt.Errorf("oauth callback_path must start with '/'")
	}
	return nil
}

// SessionExpiry returns the configured session lifetime
func (c *Config) SessionExpiry() time.Duration {
	return time.Duration(c.SessionExpireMinutes) * time.Minute
}

// CallbackURL joins the public URL with the OAuth callback path
func (c *Config) CallbackURL() string {
	return strings.TrimRight(c.PublicURL, "/") + c.OAuth.CallbackPath
}

// SeedCategories parses the comma-separated demo category list
func (c *Config) SeedCategories() []models.Category {
	var categories []models.Category
	for _, name := range strings.Split(c.DemoCategories, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		categories = append(categories, models.Category{Name: name})
	}
	return categories
}

// SeedItems parses the comma-separated title:category_id demo item list
func (c *Config) SeedItems() ([]models.CategoryItem, error) {
	var items []models.CategoryItem
	for _, entry := range strings.Split(c.DemoItems, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		title, rawID, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("malformed demo item %q: expected title:category_id", entry)
		}
		categoryID, err := strconv.ParseUint(strings.TrimSpace(rawID), 10, 32)
		if err != nil || categoryID == 0 {
			return nil, fmt.Errorf("malformed demo item %q: bad category id", entry)
		}

		items = append(items, models.CategoryItem{
			Title:      strings.TrimSpace(title),
			CategoryID: uint(categoryID),
		})
	}
	return items, nil
}
