package utils

// Configuration discovery constants.
const (
	// ConfigFileName is the per-project configuration file.
	ConfigFileName = ".dirindex.yaml"
	// GlobalConfigDirectoryName is the directory under the user's home
	// holding the global configuration file.
	GlobalConfigDirectoryName = ".dirindex"
)

// LoggerInitializationFailedMessageFormat reports a logger construction failure.
const LoggerInitializationFailedMessageFormat = "logger initialization failed: %w"

// ApplicationExecutionFailedMessage prefixes fatal application errors.
const ApplicationExecutionFailedMessage = "application execution failed"
