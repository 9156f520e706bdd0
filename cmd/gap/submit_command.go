package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShagaDAO/gap/internal/client"
	"github.com/ShagaDAO/gap/internal/domain/model"
	"github.com/ShagaDAO/gap/pkg/logger"
)

func newSubmitCommand() *cobra.Command {
	var (
		server      string
		profileName string
		format      string
		strict      bool
		updateCache bool
		workers     int
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "submit <source>...",
		Short: "Send shards to a running gapd and wait for the reports",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			c := client.New(server, client.WithLogger(logger.Get().Named("client")))

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := c.Health(ctx); err != nil {
				return err
			}

			subs := make([]client.Submission, len(args))
			for i, src := range args {
				subs[i] = client.Submission{Source: src, Profile: profileName}
				if cmd.Flags().Changed("strict") {
					subs[i].Strict = &strict
				}
				if cmd.Flags().Changed("update-cache") {
					subs[i].UpdateCache = &updateCache
				}
			}
			jobs, err := c.SubmitAll(ctx, subs, workers)
			if err != nil {
				return err
			}

			if format != formatText {
				return writeStructured(cmd, format, jobs)
			}
			rows := make([][]string, 0, len(jobs))
			failed := false
			for _, j := range jobs {
				valid, action, outcome := "-", "-", "-"
				if r := j.Report; r != nil {
					valid = fmt.Sprintf("%t", r.Validation != nil && r.Validation.Valid)
					if r.Decision != nil {
						action = string(r.Decision.Action)
					}
					if r.Acceptance != nil {
						outcome = string(r.Acceptance.Outcome)
					}
				}
				if j.Status == model.JobFailed {
					failed = true
					outcome = j.Error
				}
				rows = append(rows, []string{j.Request.Source, j.ID, string(j.Status), valid, action, outcome})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Source", "Job", "Status", "Valid", "Action", "Outcome"}, rows, nil))
			if failed {
				return &exitError{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:9080", "gapd base URL")
	cmd.Flags().StringVarP(&profileName, "profile", "p", "", "Capture profile (server default when empty)")
	cmd.Flags().BoolVar(&strict, "strict", false, "Enforce recommended settings such as the profile bitrate")
	cmd.Flags().BoolVar(&updateCache, "update-cache", false, "Learn the fingerprints of admitted shards")
	cmd.Flags().IntVarP(&workers, "workers", "w", 4, "Submissions in flight at once")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Overall deadline")
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "Output format: text, json or yaml")
	return cmd
}
