package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"faimport/internal/config"
	"faimport/internal/database"
	"faimport/internal/extraction"
	"faimport/internal/gmail"
	"faimport/internal/importer"
	"faimport/internal/logger"
	"faimport/internal/matching"
	"faimport/internal/ocr"
	"faimport/internal/staging"
	"faimport/pkg/models"
)

// app holds the wired services shared by the commands.
type app struct {
	cfg      *config.Config
	db       database.Gateway
	repo     *staging.Repository
	matcher  *matching.Service
	pipeline *importer.Pipeline
	sources  *importer.Factory
	closers  []io.Closer
	log      zerolog.Logger
}

// newApp opens the database and wires the services. Sources are only built when withSources
// is set because they may dial Google APIs.
func newApp(ctx context.Context, withSources bool) (*app, error) {
	log := logger.WithComponent("app")

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	db, err := database.Open(ctx, database.Options{
		Driver:      cfg.DBDriver,
		Host:        cfg.DBHost,
		Port:        cfg.DBPort,
		User:        cfg.DBUser,
		Password:    cfg.DBPassword,
		Name:        cfg.DBName,
		Path:        cfg.DBPath,
		TablePrefix: cfg.DBTablePrefix,
	})
	if err != nil {
		return nil, err
	}

	repo := staging.NewRepository(db)
	matcher := matching.NewService(db, repo, repo)
	a := &app{
		cfg:      cfg,
		db:       db,
		repo:     repo,
		matcher:  matcher,
		pipeline: importer.NewPipeline(repo, matcher, importer.NewSQLDuplicateFinder(db), cfg.DuplicateThreshold),
		closers:  []io.Closer{db},
		log:      log,
	}

	if withSources {
		if err := a.buildSources(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

// buildSources wires the OCR engines, the extractor chain and the mailbox. Cloud services
// that are not configured are left out rather than failing.
func (a *app) buildSources(ctx context.Context) error {
	cfg := a.cfg

	var fallback ocr.OCRService
	if cfg.GoogleServiceAccountKey != "" {
		vision, err := ocr.NewGoogleVisionOCRService(ctx, cfg.GoogleServiceAccountKey)
		if err != nil {
			return fmt.Errorf("cloud vision: %w", err)
		}
		fallback = vision
		a.closers = append(a.closers, vision)
	} else {
		a.log.Info().Msg("GOOGLE_SERVICE_ACCOUNT_KEY not set, scanned PDFs will not be OCRed")
	}

	extractors := []extraction.Extractor{extraction.NewTextParser()}
	if err := cfg.RequireGoogleCloud(); err == nil {
		docAI, err := extraction.NewDocumentAIExtractor(ctx, extraction.DocumentAIConfig{
			ProjectID:        cfg.GoogleCloudProject,
			Location:         cfg.GoogleCloudLocation,
			ProcessorID:      cfg.DocumentAIProcessorID,
			ProcessorVersion: cfg.DocumentAIProcessorVersion,
			CredentialsFile:  cfg.GoogleServiceAccountKey,
		})
		if err != nil {
			return fmt.Errorf("document ai: %w", err)
		}
		extractors = append(extractors, docAI)
		a.closers = append(a.closers, docAI)
	}
	if cfg.OpenAIAPIKey != "" {
		gpt, err := extraction.NewChatGPTExtractor(cfg.OpenAIAPIKey, extraction.DefaultChatGPTConfig())
		if err != nil {
			return fmt.Errorf("chatgpt: %w", err)
		}
		extractors = append(extractors, gpt)
	}

	a.sources = &importer.Factory{
		OCR:        ocr.NewLayeredOCRService(fallback),
		Extractor:  extraction.NewChain(extractors...),
		GmailQuery: cfg.GmailQuery,
	}
	if err := cfg.RequireGmail(); err == nil {
		client, err := gmail.NewClient(ctx, cfg.GoogleServiceAccountKey, cfg.GmailUser)
		if err != nil {
			return fmt.Errorf("gmail: %w", err)
		}
		a.sources.Mailbox = client
	}

	a.log.Debug().
		Int("extractors", len(extractors)).
		Bool("vision", fallback != nil).
		Bool("gmail", a.sources.Mailbox != nil).
		Msg("Import sources configured")
	return nil
}

// Close releases clients in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.Warn().Err(err).Msg("Close failed")
		}
	}
}

// actor resolves the --actor flag, falling back to the configured default.
func (a *app) actor(cmd *cobra.Command) models.Actor {
	if v, _ := cmd.Flags().GetString("actor"); v != "" {
		return models.Actor(v)
	}
	return models.Actor(a.cfg.DefaultActor)
}

// signalContext is cancelled on SIGINT/SIGTERM or after timeout, when timeout is positive.
func signalContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	return tctx, func() {
		cancel()
		stop()
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var errNotFound = errors.New("not found")
