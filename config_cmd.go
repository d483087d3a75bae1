package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/gfolder/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		RunE:  runConfigShow,
	}
}

// configJSON is the JSON schema for `config show --json`.
type configJSON struct {
	ConfigPath      string `json:"config_path"`
	CredentialsFile string `json:"credentials_file"`
	RootFolder      string `json:"root_folder"`
	APIEndpoint     string `json:"api_endpoint"`
	PageSize        int    `json:"page_size"`
	LogLevel        string `json:"log_level"`
	LogFormat       string `json:"log_format"`
	ConnectTimeout  string `json:"connect_timeout"`
	DataTimeout     string `json:"data_timeout"`
	UserAgent       string `json:"user_agent"`
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if resolvedCfg == nil {
		return fmt.Errorf("no configuration loaded")
	}

	out := cmd.OutOrStdout()

	if flagJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")

		return enc.Encode(configJSON{
			ConfigPath:      resolvedCfg.ConfigPath,
			CredentialsFile: resolvedCfg.CredentialsFile,
			RootFolder:      resolvedCfg.RootFolder,
			APIEndpoint:     resolvedCfg.APIEndpoint,
			PageSize:        resolvedCfg.PageSize,
			LogLevel:        resolvedCfg.LogLevel,
			LogFormat:       resolvedCfg.LogFormat,
			ConnectTimeout:  resolvedCfg.ConnectTimeout,
			DataTimeout:     resolvedCfg.DataTimeout,
			UserAgent:       resolvedCfg.UserAgent,
		})
	}

	return config.RenderEffective(resolvedCfg, out)
}
