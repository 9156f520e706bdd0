package main

import (
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/ShagaDAO/gap/internal/admission"
	"github.com/ShagaDAO/gap/internal/app"
	"github.com/ShagaDAO/gap/internal/config"
	"github.com/ShagaDAO/gap/pkg/logger"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag, logLevelFlag: logLevelFlag}
}

// ensureConfig loads configuration once. --config takes the place of
// GAP_CONFIG.
func (c *commandContext) ensureConfig(cmd *cobra.Command) (*config.Config, error) {
	c.configOnce.Do(func() {
		if path := strings.TrimSpace(*c.configFlag); path != "" {
			if err := os.Setenv("GAP_CONFIG", path); err != nil {
				c.configErr = err
				return
			}
		}
		cfg, err := config.Load(cmd.Context())
		if err != nil {
			c.configErr = err
			return
		}
		level := cfg.LogLevel
		if *c.logLevelFlag != "" {
			level = *c.logLevelFlag
		}
		c.configErr = logger.SetLevelString(level)
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) pipeline(cmd *cobra.Command, mutate func(*config.Config)) (*admission.Pipeline, error) {
	cfg, err := c.ensureConfig(cmd)
	if err != nil {
		return nil, err
	}
	local := *cfg
	if mutate != nil {
		mutate(&local)
	}
	return app.NewPipeline(&local, logger.Get())
}

func newRootCommand() *cobra.Command {
	var configFlag, logLevelFlag string
	ctx := newCommandContext(&configFlag, &logLevelFlag)

	rootCmd := &cobra.Command{
		Use:           "gap",
		Short:         "Validate and fingerprint GAP gameplay shards",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.InitWriter(cmd.ErrOrStderr()); err != nil {
				return err
			}
			_, err := ctx.ensureConfig(cmd)
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newValidateCommand(ctx))
	rootCmd.AddCommand(newCheckCommand(ctx))
	rootCmd.AddCommand(newExtractCommand(ctx))
	rootCmd.AddCommand(newCacheCommand(ctx))
	rootCmd.AddCommand(newSynthCommand())
	rootCmd.AddCommand(newSubmitCommand())

	return rootCmd
}
