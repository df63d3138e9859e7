package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"captioner/internal/jobstore"
)

// historyEntry is the stable JSON/YAML shape of a history row.
type historyEntry struct {
	ID           string `json:"id" yaml:"id"`
	Status       string `json:"status" yaml:"status"`
	Source       string `json:"source" yaml:"source"`
	Caption      string `json:"caption" yaml:"caption"`
	OutputPath   string `json:"output_path,omitempty" yaml:"output_path,omitempty"`
	Frames       int    `json:"frames" yaml:"frames"`
	Lines        int    `json:"lines" yaml:"lines"`
	ErrorKind    string `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	ErrorMessage string `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	CreatedAt    string `json:"created_at" yaml:"created_at"`
	Duration     string `json:"duration" yaml:"duration"`
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var format string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent caption jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			if store == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Job history is disabled (history.enabled = false)")
				return nil
			}
			defer store.Close()

			records, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			switch strings.ToLower(strings.TrimSpace(format)) {
			case "json":
				return writeJSON(cmd, historyEntries(records))
			case "yaml", "yml":
				return writeYAML(cmd, historyEntries(records))
			case "", "table":
			default:
				return fmt.Errorf("unknown format %q (want table, json, or yaml)", format)
			}

			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No caption jobs recorded")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderHistoryTable(records))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of jobs to show")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format: table, json, or yaml")
	return cmd
}

func historyEntries(records []jobstore.Record) []historyEntry {
	entries := make([]historyEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, historyEntry{
			ID:           rec.ID,
			Status:       rec.Status,
			Source:       rec.Source,
			Caption:      rec.Caption,
			OutputPath:   rec.OutputPath,
			Frames:       rec.FrameCount,
			Lines:        rec.LineCount,
			ErrorKind:    rec.ErrorKind,
			ErrorMessage: rec.ErrorMessage,
			CreatedAt:    rec.CreatedAt.Format(time.RFC3339),
			Duration:     formatDuration(rec.Duration()),
		})
	}
	return entries
}

func renderHistoryTable(records []jobstore.Record) string {
	title := cases.Title(language.Und)
	columns := []column{
		{Header: "ID"},
		{Header: "Status"},
		{Header: "Started"},
		{Header: "Frames", Align: alignRight},
		{Header: "Took", Align: alignRight},
		{Header: "Caption", MaxWidth: 40},
		{Header: "Result", MaxWidth: 60},
	}
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		outcome := rec.OutputPath
		if rec.ErrorKind != "" {
			outcome = fmt.Sprintf("%s: %s", rec.ErrorKind, rec.ErrorMessage)
		}
		rows = append(rows, []string{
			shortID(rec.ID),
			title.String(rec.Status),
			rec.CreatedAt.Local().Format("2006-01-02 15:04"),
			strconv.Itoa(rec.FrameCount),
			formatDuration(rec.Duration()),
			rec.Caption,
			outcome,
		})
	}
	return renderTable(columns, rows)
}
