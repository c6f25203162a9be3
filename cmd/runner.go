package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/bpmx/internal/repositories"
	"github.com/desertthunder/bpmx/internal/services"
	"github.com/desertthunder/bpmx/internal/shared"
	"github.com/desertthunder/bpmx/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer

	// Wired lazily by pipeline() on the first command that needs them, or
	// injected directly in tests.
	db       *sql.DB
	pipe     *tasks.Pipeline
	source   services.TrackSource
	analyzer tasks.Analyzer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Source     services.TrackSource
	Analyzer   tasks.Analyzer
	Pipeline   *tasks.Pipeline
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		source:     opts.Source,
		analyzer:   opts.Analyzer,
		pipe:       opts.Pipeline,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, configCommand, resolveCommand, batchCommand, selectionCommand, reviewCommand, serveCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig reloads configuration when the command names a config file that
// exists, keeping the runner's defaults otherwise.
func (r *Runner) loadConfig(cmd *cli.Command) *shared.Config {
	configPath := cmd.String("config")
	if configPath == "" {
		return r.config
	}
	if _, err := os.Stat(configPath); err != nil {
		return r.config
	}

	config, err := shared.LoadConfig(configPath)
	if err != nil {
		r.logger.Warn("failed to load config, using defaults", "path", configPath, "error", err)
		return r.config
	}
	return config
}

// pipeline wires the full dependency graph (database, repositories, provider
// clients, analysis engine) on first use. Tests inject a prebuilt pipeline
// through RunnerOpts instead.
func (r *Runner) pipeline(ctx context.Context, cmd *cli.Command) (*tasks.Pipeline, error) {
	if r.pipe != nil {
		return r.pipe, nil
	}

	config := r.loadConfig(cmd)

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)
	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	r.db = db

	source := r.source
	if source == nil {
		source, err = services.NewSpotifyService(ctx, map[string]string{
			"client_id":     config.Credentials.Spotify.ClientID,
			"client_secret": config.Credentials.Spotify.ClientSecret,
		})
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	deezer := services.NewDeezerService(config.Providers.DeezerBaseURL, r.httpClient)
	itunes := services.NewITunesService(config.Providers.ITunesBaseURL, r.httpClient)

	analyzer := r.analyzer
	if analyzer == nil {
		analyzer = services.NewAnalysisService(config.Engine, services.StaticToken(config.Engine.Token), r.httpClient)
	}

	directory := services.NewMusicBrainzService(config.MusicBrainz.BaseURL, config.MusicBrainz.UserAgent, r.httpClient)
	store := repositories.NewAnalysisRepository(db)

	r.pipe = tasks.NewPipeline(
		source,
		deezer,
		[]services.SearchProvider{itunes, deezer},
		analyzer,
		store,
		directory,
		config,
		r.logger,
	)
	return r.pipe, nil
}

// Close releases the database handle when the runner opened one.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
