package feed

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

type ConfigCache struct {
	feedsDir string
	cache    map[string]*Config
	mu       sync.RWMutex
}

func NewConfigCache(feedsDir string) *ConfigCache {
	return &ConfigCache{
		feedsDir: feedsDir,
		cache:    make(map[string]*Config),
	}
}

func (cc *ConfigCache) Run() error {
	if _, err := os.Stat(cc.feedsDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.feedsDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		// Derive feed file name from filename (remove .yml extension)
		fileName := filepath.Base(file)
		feedFile := fileName[:len(fileName)-4]

		config, err := cc.LoadConfig(feedFile)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Configuration loaded", "feed", feedFile, "url", config.URL, "enabled", config.IsEnabled())
	}

	return nil
}

func (cc *ConfigCache) LoadConfig(feedFile string) (*Config, error) {
	configFile := cc.getConfigFilePath(feedFile)
	feedConfig, err := cc.parseConfig(configFile)
	if err != nil {
		return nil, err
	}

	feedConfig.File = feedFile

	if err := cc.validateConfig(feedConfig); err != nil {
		return nil, &ConfigError{Feed: configFile, Err: err}
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[feedConfig.File] = feedConfig

	return feedConfig, nil
}

func (cc *ConfigCache) GetConfig(feedFile string) (*Config, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	feedConfig, ok := cc.cache[feedFile]
	if !ok {
		return nil, fmt.Errorf("feed config with name '%s' not found", feedFile)
	}
	return feedConfig.clone(), nil
}

func (cc *ConfigCache) GetConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	configsCopy := make(map[string]*Config, len(cc.cache))
	for k, v := range cc.cache {
		configsCopy[k] = v.clone()
	}
	return configsCopy
}

// GetEnabledConfigs returns the enabled subscriptions ordered by file name.
func (cc *ConfigCache) GetEnabledConfigs() []*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	enabledConfigs := make([]*Config, 0, len(cc.cache))
	for _, v := range cc.cache {
		if v.IsEnabled() {
			enabledConfigs = append(enabledConfigs, v.clone())
		}
	}
	sort.Slice(enabledConfigs, func(i, j int) bool {
		return enabledConfigs[i].File < enabledConfigs[j].File
	})
	return enabledConfigs
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

func (cc *ConfigCache) parseConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var feedConfig Config
	if err := yaml.Unmarshal(data, &feedConfig); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	feedConfig.URL = strings.TrimSpace(feedConfig.URL)
	return &feedConfig, nil
}

func (cc *ConfigCache) validateConfig(feedConfig *Config) error {
	if feedConfig == nil {
		return fmt.Errorf("feedConfig is nil")
	}

	requiredFeedFields := map[string]string{
		"feed file": feedConfig.File,
		"feed URL":  feedConfig.URL,
	}

	for fieldName, fieldValue := range requiredFeedFields {
		if fieldValue == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
	}

	parsed, err := url.Parse(feedConfig.URL)
	if err != nil {
		return fmt.Errorf("invalid feed URL: %w", err)
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return fmt.Errorf("feed URL must be absolute: %s", feedConfig.URL)
	}

	if _, err := NewFilterer(feedConfig.Filter, feedConfig.Exclude); err != nil {
		return err
	}

	for name := range feedConfig.Options {
		if name == "" || strings.ContainsAny(name, " \t\n") {
			return fmt.Errorf("invalid option name %q", name)
		}
		if feedReservedKeys[name] {
			return fmt.Errorf("option %q is reserved", name)
		}
	}

	return nil
}

func (cc *ConfigCache) getConfigFilePath(feedFile string) string {
	return filepath.Join(cc.feedsDir, feedFile+".yml")
}

func (c *Config) clone() *Config {
	copied := *c
	if c.Options != nil {
		copied.Options = make(map[string]string, len(c.Options))
		for k, v := range c.Options {
			copied.Options[k] = v
		}
	}
	return &copied
}
