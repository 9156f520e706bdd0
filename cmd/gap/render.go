package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ShagaDAO/gap/internal/domain/model"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func checkFormat(format string) error {
	switch format {
	case formatText, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
	}
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(cmd *cobra.Command, v any) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func writeStructured(cmd *cobra.Command, format string, v any) error {
	if format == formatYAML {
		return writeYAML(cmd, v)
	}
	return writeJSON(cmd, v)
}

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func paint(colorize bool, c text.Color, s string) string {
	if !colorize {
		return s
	}
	return c.Sprint(s)
}

// printValidation renders a validation report as a stage table followed by
// the findings.
func printValidation(out io.Writer, rep *model.ValidationReport, colorize bool) {
	printVerdict(out, rep, colorize)

	rows := make([][]string, 0, len(model.Stages))
	for _, st := range model.Stages {
		state := "skipped"
		switch {
		case rep.Ran(st) && rep.Passed(st):
			state = paint(colorize, text.FgGreen, "pass")
		case rep.Ran(st):
			state = paint(colorize, text.FgRed, "fail")
		}
		rows = append(rows, []string{string(st), state})
	}
	fmt.Fprintln(out, renderTable([]string{"Stage", "Result"}, rows, nil))

	if len(rep.Issues) > 0 {
		rows = rows[:0]
		for _, is := range rep.Issues {
			sev := string(is.Severity)
			if is.Severity == model.SeverityError {
				sev = paint(colorize, text.FgRed, sev)
			} else {
				sev = paint(colorize, text.FgYellow, sev)
			}
			rows = append(rows, []string{sev, string(is.Category), string(is.Stage), is.Message})
		}
		fmt.Fprintln(out, renderTable([]string{"Severity", "Category", "Stage", "Message"}, rows, nil))
	}

	if s := rep.SyncStats; s != nil {
		fmt.Fprintf(out, "Sync: mean %.2fms, median %.2fms, p95 %.2fms, max %.2fms, %.1f%% within 8ms (%d samples)\n",
			s.MeanDeltaMS, s.MedianDeltaMS, s.P95DeltaMS, s.MaxDeltaMS, s.Within8msPct, s.Samples)
	}
}

func printVerdict(out io.Writer, rep *model.ValidationReport, colorize bool) {
	status := paint(colorize, text.FgGreen, "VALID")
	if !rep.Valid {
		status = paint(colorize, text.FgRed, "INVALID")
	}
	profile := rep.Profile
	if profile == "" {
		profile = "generic"
	}
	fmt.Fprintf(out, "%s (profile %s", status, profile)
	if rep.Strict {
		fmt.Fprint(out, ", strict")
	}
	fmt.Fprintln(out, ")")
}

// printBrief is the quiet form: the verdict and one line per issue.
func printBrief(out io.Writer, rep *model.ValidationReport, colorize bool) {
	printVerdict(out, rep, colorize)
	for _, is := range rep.Issues {
		sev := strings.ToUpper(string(is.Severity))
		if is.Severity == model.SeverityError {
			sev = paint(colorize, text.FgRed, sev)
		} else {
			sev = paint(colorize, text.FgYellow, sev)
		}
		fmt.Fprintf(out, "%s [%s] %s\n", sev, is.Category, is.Message)
	}
}

// printAdmission renders the duplicate check and acceptance estimate.
func printAdmission(out io.Writer, rep *model.AdmissionReport, verbose, colorize bool) {
	if rep.Extraction != nil {
		fmt.Fprintf(out, "Extracted %s: %d files, %s\n", rep.Extraction.Format, rep.Extraction.Files, humanBytes(rep.Extraction.Bytes))
	}
	printValidation(out, rep.Validation, colorize)

	rows := [][]string{}
	for _, fp := range []struct {
		kind string
		res  *model.FingerprintResult
	}{{"video", rep.Video}, {"controls", rep.Controls}} {
		if fp.res == nil {
			continue
		}
		note := fp.res.Error
		if verbose && note == "" {
			note = strings.Join(fp.res.Hashes, " ")
		}
		rows = append(rows, []string{
			fp.kind,
			fmt.Sprintf("%d", len(fp.res.Hashes)),
			fmt.Sprintf("%d", fp.res.Compared),
			fmt.Sprintf("%d", fp.res.MinDistance),
			string(fp.res.Risk),
			note,
		})
	}
	if len(rows) > 0 {
		fmt.Fprintln(out, renderTable(
			[]string{"Kind", "Hashes", "Compared", "Min distance", "Risk", "Notes"},
			rows,
			[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft},
		))
	}

	if d := rep.Decision; d != nil {
		fmt.Fprintf(out, "Decision: %s (risk %s, score %d)\n", d.Action, d.RiskLevel, d.RiskScore)
	}
	if a := rep.Acceptance; a != nil {
		c := text.FgGreen
		if !a.ShouldSend {
			c = text.FgRed
		}
		fmt.Fprintf(out, "Acceptance: %s (%.0f%%) %s\n", paint(colorize, c, string(a.Outcome)), a.Probability*100, a.Reason)
	}
	if rep.CacheUpdated {
		fmt.Fprintln(out, "Cache: fingerprints learned")
	}
	if rep.CacheError != "" {
		fmt.Fprintf(out, "Cache: update failed: %s\n", rep.CacheError)
	}
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
