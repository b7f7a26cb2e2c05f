// Package app assembles a querygate session from configuration. Both
// commands share it.
package app

import (
	"context"

	"github.com/koustreak/querygate/internal/assistant"
	"github.com/koustreak/querygate/internal/config"
	"github.com/koustreak/querygate/internal/database"
	"github.com/koustreak/querygate/internal/database/drivers"
	"github.com/koustreak/querygate/internal/errs"
	"github.com/koustreak/querygate/internal/executor"
	"github.com/koustreak/querygate/internal/filestore"
	"github.com/koustreak/querygate/internal/filestore/minio"
	"github.com/koustreak/querygate/internal/logger"
	"github.com/koustreak/querygate/internal/nl2sql"
	"github.com/koustreak/querygate/internal/schema"
)

// Startup stages reported by StageError.
const (
	StageDatabase = "database"
	StageLLM      = "llm"
	StageArchive  = "archive"
)

// StageError names the startup step that failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return e.Stage + ": " + e.Err.Error() }
func (e *StageError) Unwrap() error { return e.Err }

// Options tune startup.
type Options struct {
	// RequireLLM fails startup without an API key. When false, questions
	// fail with a configuration error while validate/query keep working.
	RequireLLM bool
}

// App is a ready question pipeline.
type App struct {
	Driver  database.Driver
	Session *assistant.Session
	// Archive is nil unless cfg.Archive.Enabled.
	Archive *filestore.Archive
}

// New resolves the connection, opens the optional archive and starts a
// session, which describes the schema once.
func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	log := logger.FromContext(ctx)

	dbCfg, err := cfg.Database.Resolve()
	if err != nil {
		return nil, &StageError{Stage: StageDatabase, Err: err}
	}
	connector, err := drivers.New(dbCfg)
	if err != nil {
		return nil, &StageError{Stage: StageDatabase, Err: err}
	}

	var (
		generator assistant.Generator
		explainer assistant.Explainer
	)
	client, err := nl2sql.New(nl2sql.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		Dialect:     connector.Driver().Dialect(),
	})
	switch {
	case err == nil:
		generator, explainer = client, client
	case opts.RequireLLM:
		return nil, &StageError{Stage: StageLLM, Err: err}
	default:
		log.WarnWith("question answering disabled", err, nil)
		off := unavailable{err: err}
		generator, explainer = off, off
	}

	a := &App{Driver: connector.Driver()}
	sessionOpts := assistant.Options{
		MaxTables:  cfg.Schema.MaxTables,
		MaxColumns: cfg.Schema.MaxColumns,
		MaxRows:    cfg.Query.MaxRows,
	}
	if cfg.Archive.Enabled {
		archive, err := openArchive(ctx, cfg.Archive)
		if err != nil {
			return nil, &StageError{Stage: StageArchive, Err: err}
		}
		a.Archive = archive
		sessionOpts.Archive = archive
	}

	introspector := schema.NewIntrospector(connector, dbCfg.QueryTimeout)
	runner := executor.New(connector, dbCfg.QueryTimeout)
	session, err := assistant.NewSession(ctx, introspector, generator, runner, explainer, sessionOpts)
	if err != nil {
		return nil, &StageError{Stage: StageDatabase, Err: err}
	}
	a.Session = session
	return a, nil
}

func openArchive(ctx context.Context, cfg config.ArchiveConfig) (*filestore.Archive, error) {
	fsCfg := &filestore.Config{
		Provider:         filestore.ProviderMinIO,
		Endpoint:         cfg.Endpoint,
		AccessKey:        cfg.AccessKey,
		SecretKey:        cfg.SecretKey,
		UseSSL:           cfg.UseSSL,
		Region:           cfg.Region,
		Bucket:           cfg.Bucket,
		Prefix:           cfg.Prefix,
		AutoCreateBucket: cfg.AutoCreateBucket,
	}
	store, err := minio.New(ctx, fsCfg)
	if err != nil {
		return nil, err
	}
	archive := filestore.NewArchive(store, fsCfg.Bucket, fsCfg.Prefix)
	if err := archive.Prepare(ctx, fsCfg.AutoCreateBucket); err != nil {
		_ = store.Close()
		return nil, err
	}
	return archive, nil
}

// unavailable stands in for the LLM client when none is configured.
type unavailable struct{ err error }

func (u unavailable) Generate(context.Context, string, string) (string, error) {
	return "", errs.Wrap(errs.ErrKindConfiguration, "question answering is not configured", u.err)
}

func (u unavailable) Explain(context.Context, string, string, *executor.ResultSet) (string, error) {
	return "", errs.Wrap(errs.ErrKindConfiguration, "question answering is not configured", u.err)
}
