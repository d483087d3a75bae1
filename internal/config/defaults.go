package config

// Default values for configuration options: layer 0 of the override chain.
const (
	defaultCredentialsFile = "~/.gfolderrc"
	defaultRootFolder      = "/"
	defaultAPIEndpoint     = "https://www.googleapis.com/drive/v3/"
	defaultPageSize        = 1000
	defaultLogLevel        = "info"
	defaultLogFormat       = "auto"
	defaultConnectTimeout  = "10s"
	defaultDataTimeout     = "60s"
	defaultUserAgent       = "gfolder/0.1"
)

// DefaultConfig returns a Config populated with all default values.
// It is both the starting point for TOML decoding (so unset fields keep
// their defaults) and the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		FolderConfig: FolderConfig{
			CredentialsFile: defaultCredentialsFile,
			RootFolder:      defaultRootFolder,
		},
		DriveConfig: DriveConfig{
			APIEndpoint: defaultAPIEndpoint,
			PageSize:    defaultPageSize,
		},
		LoggingConfig: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		NetworkConfig: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
			DataTimeout:    defaultDataTimeout,
			UserAgent:      defaultUserAgent,
		},
	}
}
