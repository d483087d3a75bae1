package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig      = "GFOLDER_CONFIG"
	EnvCredentials = "GFOLDER_CREDENTIALS"
	EnvRoot        = "GFOLDER_ROOT"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath      string // GFOLDER_CONFIG: override config file path
	CredentialsFile string // GFOLDER_CREDENTIALS: credential file path
	RootFolder      string // GFOLDER_ROOT: folder the CLI operates on
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:      os.Getenv(EnvConfig),
		CredentialsFile: os.Getenv(EnvCredentials),
		RootFolder:      os.Getenv(EnvRoot),
	}
}
