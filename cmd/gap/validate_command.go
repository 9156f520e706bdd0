package main

import (
	"github.com/spf13/cobra"

	"github.com/ShagaDAO/gap/internal/domain/model"
)

func newValidateCommand(ctx *commandContext) *cobra.Command {
	var (
		profileName string
		format      string
		strict      bool
		quiet       bool
	)

	cmd := &cobra.Command{
		Use:   "validate <path>",
		Short: "Run the quality checks on a shard directory or archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("profile") {
				profileName = cfg.DefaultProfile
			}
			if !cmd.Flags().Changed("strict") {
				strict = cfg.Strict
			}
			p, err := ctx.pipeline(cmd, nil)
			if err != nil {
				return err
			}

			rep, err := p.Validate(cmd.Context(), model.AdmissionRequest{Source: args[0], Profile: profileName, Strict: strict})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch {
			case format != formatText:
				if err := writeStructured(cmd, format, rep.Validation); err != nil {
					return err
				}
			case quiet:
				printBrief(out, rep.Validation, shouldColorize(out))
			default:
				printValidation(out, rep.Validation, shouldColorize(out))
			}
			if !rep.Validation.Valid {
				return &exitError{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&profileName, "profile", "p", "", "Capture profile to check against")
	cmd.Flags().BoolVar(&strict, "strict", false, "Enforce recommended settings such as the profile bitrate")
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "Output format: text, json or yaml")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print the verdict, errors and warnings")
	return cmd
}
