package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/bpmx/internal/formatter"
	"github.com/desertthunder/bpmx/internal/models"
	"github.com/desertthunder/bpmx/internal/repositories"
	"github.com/desertthunder/bpmx/internal/tasks"
)

// SelectionSet overrides which algorithm (or manual value) is authoritative
// for a track's tempo and key.
func (r *Runner) SelectionSet(ctx context.Context, cmd *cli.Command) error {
	trackID := cmd.String("id")

	pipeline, err := r.pipeline(ctx, cmd)
	if err != nil {
		return err
	}

	update := repositories.SelectionUpdate{}
	if source := cmd.String("tempo-source"); source != "" {
		sel := models.Selector(source)
		update.TempoSelected = &sel
	}
	if source := cmd.String("key-source"); source != "" {
		sel := models.Selector(source)
		update.KeySelected = &sel
	}
	if cmd.IsSet("tempo") {
		tempo := cmd.Float64("tempo")
		update.TempoManual = &tempo
	}
	if key := cmd.String("key"); key != "" {
		update.KeyManual = &key
	}
	if scale := cmd.String("scale"); scale != "" {
		update.ScaleManual = &scale
	}

	record, err := pipeline.UpdateSelection(ctx, trackID, update)
	if err != nil {
		return err
	}

	return r.renderRecords(cmd, []*models.TrackAnalysis{record})
}

// ReviewList prints the pending mismatch review queue.
func (r *Runner) ReviewList(ctx context.Context, cmd *cli.Command) error {
	pipeline, err := r.pipeline(ctx, cmd)
	if err != nil {
		return err
	}

	items, err := pipeline.ReviewQueue(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(items, cmd.Bool("pretty"))
	}
	return r.writePlain("%s", formatter.ReviewQueueToText(items))
}

// reviewVerdict applies one of the review actions to a flagged track.
func (r *Runner) reviewVerdict(ctx context.Context, cmd *cli.Command, action tasks.ReviewAction) error {
	trackID := cmd.String("id")
	reviewer := cmd.String("reviewer")

	pipeline, err := r.pipeline(ctx, cmd)
	if err != nil {
		return err
	}

	record, err := pipeline.Review(ctx, trackID, action, reviewer)
	if err != nil {
		return err
	}

	r.writePlainln("Review recorded for %s (%s by %s)", record.TrackID, action, reviewer)
	return r.renderRecords(cmd, []*models.TrackAnalysis{record})
}

func (r *Runner) ReviewConfirm(ctx context.Context, cmd *cli.Command) error {
	return r.reviewVerdict(ctx, cmd, tasks.ReviewConfirmMatch)
}

func (r *Runner) ReviewMismatch(ctx context.Context, cmd *cli.Command) error {
	return r.reviewVerdict(ctx, cmd, tasks.ReviewConfirmMismatch)
}

func (r *Runner) ReviewResolve(ctx context.Context, cmd *cli.Command) error {
	return r.reviewVerdict(ctx, cmd, tasks.ReviewResolveISRC)
}

// selectionCommand handles per-track tempo/key source overrides.
func selectionCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "selection",
		Usage: "Control which algorithm is authoritative per track",
		Commands: []*cli.Command{
			{
				Name:  "set",
				Usage: "Set tempo/key selection for a track",
				Flags: append(outputFlags(),
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Track ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "tempo-source",
						Usage: "Tempo source: primary, secondary or manual",
					},
					&cli.Float64Flag{
						Name:  "tempo",
						Usage: "Manual tempo value in BPM",
					},
					&cli.StringFlag{
						Name:  "key-source",
						Usage: "Key source: primary, secondary or manual",
					},
					&cli.StringFlag{
						Name:  "key",
						Usage: "Manual key value (e.g. F#)",
					},
					&cli.StringFlag{
						Name:  "scale",
						Usage: "Manual scale value (major or minor)",
					},
				),
				Action: r.SelectionSet,
			},
		},
	}
}

// reviewCommand handles the ISRC mismatch review workflow.
func reviewCommand(r *Runner) *cli.Command {
	verdictFlags := func() []cli.Flag {
		return append(outputFlags(),
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.StringFlag{
				Name:     "id",
				Usage:    "Track ID",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "reviewer",
				Usage:    "Reviewer identity recorded with the verdict",
				Required: true,
			},
		)
	}

	return &cli.Command{
		Name:  "review",
		Usage: "Work the ISRC mismatch review queue",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List tracks pending review",
				Flags: append(outputFlags(),
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
				),
				Action: r.ReviewList,
			},
			{
				Name:   "confirm",
				Usage:  "Confirm the preview matches the track despite the flag",
				Flags:  verdictFlags(),
				Action: r.ReviewConfirm,
			},
			{
				Name:   "mismatch",
				Usage:  "Confirm the preview is the wrong recording",
				Flags:  verdictFlags(),
				Action: r.ReviewMismatch,
			},
			{
				Name:   "resolve",
				Usage:  "Re-resolve the preview by authoritative ISRC lookup",
				Flags:  verdictFlags(),
				Action: r.ReviewResolve,
			},
		},
	}
}
