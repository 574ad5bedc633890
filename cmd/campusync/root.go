package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/campusync/internal/config"
	"github.com/kimhsiao/campusync/internal/logging"
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	envFile    string
	dataDir    string
	apiURL     string
	token      string
	logLevel   string
	offline    bool
}

// rootState is filled in by PersistentPreRunE.
type rootState struct {
	flags globalFlags
	cfg   *config.Config
}

func newRootCmd() *cobra.Command {
	state := &rootState{}

	cmd := &cobra.Command{
		Use:   "campusync",
		Short: "Offline-first access to the school portal API",
		Long: `Offline-first access to the school portal API.

Reads are served from the local cache when possible. Writes land in the
cache first and are queued for replay when the server cannot be reached.
Run "campusync sync" or "campusync serve" to replay queued writes.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return state.load(cmd)
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&state.flags.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/campusync/config.toml)")
	f.StringVar(&state.flags.envFile, "env-file", "", "dotenv file (default ./.env)")
	f.StringVar(&state.flags.dataDir, "data-dir", "", "local store directory")
	f.StringVar(&state.flags.apiURL, "api", "", "REST API base URL")
	f.StringVar(&state.flags.token, "token", "", "bearer token for the REST API")
	f.StringVar(&state.flags.logLevel, "log-level", "", "debug, info, warn or error")
	f.BoolVar(&state.flags.offline, "offline", false, "do not touch the network")

	cmd.AddCommand(
		newGetCmd(state),
		newPostCmd(state),
		newPutCmd(state),
		newDeleteCmd(state),
		newSyncCmd(state),
		newStatusCmd(state),
		newQueueCmd(state),
		newServeCmd(state),
	)
	return cmd
}

// load reads the configuration and applies flags on top of it.
func (s *rootState) load(cmd *cobra.Command) error {
	cfg, err := config.Load(config.LoadOptions{
		ConfigPath: s.flags.configPath,
		EnvFile:    s.flags.envFile,
	})
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		cfg.Storage.DataDir = s.flags.dataDir
	}
	if flags.Changed("api") {
		cfg.API.BaseURL = s.flags.apiURL
	}
	if flags.Changed("token") {
		cfg.API.Token = s.flags.token
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = s.flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.Init(os.Stderr, logging.ParseLevel(cfg.Log.Level))
	s.cfg = cfg
	return nil
}
