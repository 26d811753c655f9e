// Package config loads application configuration for the dirindex CLI from
// global and per-project files, merging the local file over the global one.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/mkoval/dirindex/internal/utils"
)

// LoadOptions controls how application configuration is discovered.
type LoadOptions struct {
	WorkingDirectory string
	ExplicitFilePath string
}

// ApplicationConfiguration holds command-specific configuration defaults.
type ApplicationConfiguration struct {
	Index  IndexCommandConfiguration  `mapstructure:"index"`
	Search SearchCommandConfiguration `mapstructure:"search"`
}

// IndexCommandConfiguration defines defaults for the index and tree commands.
type IndexCommandConfiguration struct {
	Format           string `mapstructure:"format"`
	RespectGitignore *bool  `mapstructure:"respect_gitignore"`
	FollowSymlinks   *bool  `mapstructure:"follow_symlinks"`
	MaxParallelism   *int   `mapstructure:"max_parallelism"`
	OutputPath       string `mapstructure:"out"`
	Clipboard        *bool  `mapstructure:"clipboard"`
}

// SearchCommandConfiguration defines defaults for the search command.
type SearchCommandConfiguration struct {
	Format    string `mapstructure:"format"`
	Limit     *int   `mapstructure:"limit"`
	Clipboard *bool  `mapstructure:"clipboard"`
}

// LoadApplicationConfiguration loads configuration from the global file in
// the user's home directory and the local file in the working directory,
// with local values overriding global ones.
func LoadApplicationConfiguration(options LoadOptions) (ApplicationConfiguration, error) {
	workingDirectory := options.WorkingDirectory
	if workingDirectory == "" {
		currentDirectory, workingDirectoryError := os.Getwd()
		if workingDirectoryError != nil {
			return ApplicationConfiguration{}, fmt.Errorf("determine working directory: %w", workingDirectoryError)
		}
		workingDirectory = currentDirectory
	}

	var merged ApplicationConfiguration

	if homeDirectory, homeError := os.UserHomeDir(); homeError == nil && homeDirectory != "" {
		globalPath := filepath.Join(homeDirectory, utils.GlobalConfigDirectoryName, utils.ConfigFileName)
		globalConfiguration, globalLoadError := loadConfigurationFromPath(globalPath)
		if globalLoadError != nil {
			return ApplicationConfiguration{}, globalLoadError
		}
		merged = merged.Merge(globalConfiguration)
	}

	localPath, resolveError := resolveLocalConfigPath(workingDirectory, options.ExplicitFilePath)
	if resolveError != nil {
		return ApplicationConfiguration{}, resolveError
	}
	if localPath != "" {
		localConfiguration, localLoadError := loadConfigurationFromPath(localPath)
		if localLoadError != nil {
			return ApplicationConfiguration{}, localLoadError
		}
		merged = merged.Merge(localConfiguration)
	}

	return merged, nil
}

func resolveLocalConfigPath(workingDirectory, explicitPath string) (string, error) {
	if explicitPath != "" {
		if filepath.IsAbs(explicitPath) {
			return explicitPath, nil
		}
		return filepath.Join(workingDirectory, explicitPath), nil
	}
	if workingDirectory == "" {
		return "", nil
	}
	return filepath.Join(workingDirectory, utils.ConfigFileName), nil
}

func loadConfigurationFromPath(path string) (ApplicationConfiguration, error) {
	if path == "" {
		return ApplicationConfiguration{}, nil
	}
	pathInfo, statError := os.Stat(path)
	if statError != nil {
		if os.IsNotExist(statError) {
			return ApplicationConfiguration{}, nil
		}
		return ApplicationConfiguration{}, fmt.Errorf("stat configuration %s: %w", path, statError)
	}
	if pathInfo.IsDir() {
		return ApplicationConfiguration{}, fmt.Errorf("configuration path %s is a directory", path)
	}

	reader := viper.New()
	reader.SetConfigFile(path)
	reader.SetConfigType("yaml")
	if readError := reader.ReadInConfig(); readError != nil {
		return ApplicationConfiguration{}, fmt.Errorf("read configuration from %s: %w", path, readError)
	}
	var loadedConfiguration ApplicationConfiguration
	if decodeError := reader.Unmarshal(&loadedConfiguration); decodeError != nil {
		return ApplicationConfiguration{}, fmt.Errorf("decode configuration from %s: %w", path, decodeError)
	}
	return loadedConfiguration, nil
}

// Merge overlays override onto the receiver returning the combined configuration.
func (configuration ApplicationConfiguration) Merge(override ApplicationConfiguration) ApplicationConfiguration {
	result := configuration
	result.Index = result.Index.merge(override.Index)
	result.Search = result.Search.merge(override.Search)
	return result
}

func (configuration IndexCommandConfiguration) merge(override IndexCommandConfiguration) IndexCommandConfiguration {
	result := configuration
	if override.Format != "" {
		result.Format = override.Format
	}
	if override.RespectGitignore != nil {
		result.RespectGitignore = cloneBool(override.RespectGitignore)
	}
	if override.FollowSymlinks != nil {
		result.FollowSymlinks = cloneBool(override.FollowSymlinks)
	}
	if override.MaxParallelism != nil {
		result.MaxParallelism = cloneInt(override.MaxParallelism)
	}
	if override.OutputPath != "" {
		result.OutputPath = override.OutputPath
	}
	if override.Clipboard != nil {
		result.Clipboard = cloneBool(override.Clipboard)
	}
	return result
}

func (configuration SearchCommandConfiguration) merge(override SearchCommandConfiguration) SearchCommandConfiguration {
	result := configuration
	if override.Format != "" {
		result.Format = override.Format
	}
	if override.Limit != nil {
		result.Limit = cloneInt(override.Limit)
	}
	if override.Clipboard != nil {
		result.Clipboard = cloneBool(override.Clipboard)
	}
	return result
}

func cloneBool(value *bool) *bool {
	if value == nil {
		return nil
	}
	cloned := *value
	return &cloned
}

func cloneInt(value *int) *int {
	if value == nil {
		return nil
	}
	cloned := *value
	return &cloned
}
