package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/bpmx/internal/formatter"
	"github.com/desertthunder/bpmx/internal/models"
	"github.com/desertthunder/bpmx/internal/tasks"
	"github.com/desertthunder/bpmx/internal/ui"
)

// Resolve analyzes a single track, reading from the cache when a fresh
// usable record exists.
func (r *Runner) Resolve(ctx context.Context, cmd *cli.Command) error {
	trackID := cmd.StringArg("track-id")
	if trackID == "" {
		return fmt.Errorf("track ID argument is required")
	}

	pipeline, err := r.pipeline(ctx, cmd)
	if err != nil {
		return err
	}

	record, err := pipeline.ResolveSingle(ctx, trackID, cmd.String("market"))
	if err != nil {
		// A mismatch still produced a record worth showing before the
		// non-zero exit.
		if record != nil {
			r.renderRecords(cmd, []*models.TrackAnalysis{record})
		}
		return err
	}

	return r.renderRecords(cmd, []*models.TrackAnalysis{record})
}

// Batch analyzes many tracks with chunked engine submissions, printing
// progress as the pipeline reports it.
func (r *Runner) Batch(ctx context.Context, cmd *cli.Command) error {
	trackIDs := cmd.Args().Slice()
	if len(trackIDs) == 0 {
		return fmt.Errorf("at least one track ID is required")
	}

	pipeline, err := r.pipeline(ctx, cmd)
	if err != nil {
		return err
	}

	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			r.writePlain("%s\n", ui.Progress(update))
		}
	}()

	results, err := pipeline.ResolveBatch(ctx, trackIDs, cmd.String("market"), progressCh)
	close(progressCh)
	<-done

	if err != nil {
		return err
	}

	records := make([]*models.TrackAnalysis, 0, len(results))
	for _, record := range results {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].TrackID < records[j].TrackID })

	skipped := len(dedupeIDs(trackIDs)) - len(records)
	if skipped > 0 {
		r.writePlain("%s\n", ui.Help(fmt.Sprintf("%d track(s) could not be resolved, see log", skipped)))
	}

	if output := cmd.String("output"); output != "" {
		outFile, err := formatter.WriteCSVExport(records, output)
		if err != nil {
			return err
		}
		r.writePlainln("Wrote %d record(s) to %s", len(records), outFile)
		return nil
	}

	return r.renderRecords(cmd, records)
}

// renderRecords writes records as JSON, CSV or colored summary lines
// depending on the command's output flags.
func (r *Runner) renderRecords(cmd *cli.Command, records []*models.TrackAnalysis) error {
	switch {
	case cmd.Bool("json"):
		return r.writeJSON(records, cmd.Bool("pretty"))
	case cmd.Bool("csv"):
		data, err := formatter.ToCSV(records)
		if err != nil {
			return err
		}
		return r.writePlain("%s", data)
	default:
		for _, record := range records {
			r.writePlain("%s\n", ui.StatusLine(record, formatter.Summary(record)))
		}
		return nil
	}
}

func dedupeIDs(trackIDs []string) []string {
	seen := make(map[string]struct{}, len(trackIDs))
	out := make([]string, 0, len(trackIDs))
	for _, id := range trackIDs {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// resolveCommand analyzes one track.
func resolveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "resolve",
		Usage: "Resolve preview audio and analyze tempo & key for one track",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "track-id",
			},
		},
		Flags: append(outputFlags(),
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.StringFlag{
				Name:  "market",
				Usage: "Two-letter country code constraining catalog search",
			},
		),
		Action: r.Resolve,
	}
}

// batchCommand analyzes many tracks.
func batchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "batch",
		Usage:     "Analyze a set of tracks with chunked engine submissions",
		ArgsUsage: "<track-id> [track-id...]",
		Flags: append(outputFlags(),
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.StringFlag{
				Name:  "market",
				Usage: "Two-letter country code constraining catalog search",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write results to {output}_analyses.csv instead of stdout",
			},
		),
		Action: r.Batch,
	}
}

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "csv",
			Usage: "Output CSV",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print JSON output",
			Value: true,
		},
	}
}
