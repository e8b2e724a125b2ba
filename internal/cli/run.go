package cli

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"netsync/internal/app"
	"netsync/internal/config"
	"netsync/internal/telemetry"
)

// NewServeCommand runs the authority.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the authority and accept peers over websocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, rootOpts, func(cfg *config.Config) {
				cfg.Role = config.RoleAuthority
				if listen != "" {
					cfg.Listen = listen
				}
			})
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides the config file)")
	return cmd
}

// NewJoinCommand runs a peer against an authority.
func NewJoinCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "join [authority-url]",
		Short: "Connect to an authority as a peer",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, rootOpts, func(cfg *config.Config) {
				cfg.Role = config.RolePeer
				if len(args) == 1 {
					cfg.AuthorityURL = args[0]
				}
			})
		},
	}
	return cmd
}

func run(cmd *cobra.Command, opts *RootOptions, override func(*config.Config)) error {
	cfg, err := loadConfig(opts.ConfigPath, override)
	if err != nil {
		return err
	}
	logger := log.New(cmd.ErrOrStderr(), "", log.LstdFlags)
	return app.Run(cmd.Context(), app.Config{
		Runtime: cfg,
		Logger:  telemetry.WrapLogger(logger),
		Stdout:  cmd.OutOrStdout(),
	})
}

func loadConfig(path string, override func(*config.Config)) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	override(&cfg)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
