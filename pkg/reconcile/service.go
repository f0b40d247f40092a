// Package reconcile runs the devsync pipeline: fetch the broker client list,
// derive corrections, render and persist SQL, then optionally apply it and
// evict cached device keys.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/devsync/pkg/broker"
	"github.com/ethpandaops/devsync/pkg/cache"
	"github.com/ethpandaops/devsync/pkg/config"
	"github.com/ethpandaops/devsync/pkg/observability"
	"github.com/ethpandaops/devsync/pkg/rendering"
	"github.com/ethpandaops/devsync/pkg/sink"
	"github.com/ethpandaops/devsync/pkg/sqlexec"
	"github.com/ethpandaops/devsync/pkg/transform"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Static errors for halted runs
var (
	ErrNoClients    = errors.New("broker returned no clients")
	ErrNoStatements = errors.New("artifact contains no statements")
)

// Options adjust a single run
type Options struct {
	// FromFile replays statements from an existing artifact instead of fetching
	FromFile string
	// DryRun writes the artifact but never touches the database or the cache
	DryRun bool
}

// Service wires the pipeline stages together for one run. Build a new
// Service per run: its RunID is fixed at construction and tags the log lines
// of every component it creates.
type Service struct {
	runID       string
	log         logrus.FieldLogger
	cfg         *config.Config
	opts        Options
	fetcher     broker.ClientInterface
	transformer *transform.Transformer
	template    *rendering.Template
	executor    sqlexec.ExecutorInterface
	evictor     cache.EvictorInterface
}

// NewService builds the pipeline for cfg. The statement template is compiled
// here, so a bad template fails before anything is fetched.
func NewService(logger logrus.FieldLogger, cfg *config.Config, opts Options) (*Service, error) {
	runID := uuid.NewString()
	logger = logger.WithField("run_id", runID)

	tmpl, err := rendering.Compile(&cfg.Rendering)
	if err != nil {
		return nil, err
	}

	fetcher, err := broker.NewClient(logger, &cfg.EMQX)
	if err != nil {
		return nil, fmt.Errorf("failed to create broker client: %w", err)
	}

	s := &Service{
		runID:       runID,
		log:         logger.WithField("component", "reconcile"),
		cfg:         cfg,
		opts:        opts,
		fetcher:     fetcher,
		transformer: transform.NewTransformer(&cfg.Transform),
		template:    tmpl,
	}

	if cfg.MySQL.Enabled && !opts.DryRun {
		executor, err := sqlexec.NewExecutor(logger, &cfg.MySQL)
		if err != nil {
			return nil, fmt.Errorf("failed to create sql executor: %w", err)
		}

		s.executor = executor
	}

	if cfg.Redis.Enabled && !opts.DryRun {
		evictor, err := cache.NewEvictor(logger, &cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to create cache evictor: %w", err)
		}

		s.evictor = evictor
	}

	return s, nil
}

// RunID identifies the run in logs and reports
func (s *Service) RunID() string {
	return s.runID
}

// Run executes one reconciliation. It only returns an error when no
// statements could be produced; later stage failures are logged and recorded
// in the report.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{
		RunID:      s.runID,
		OutputFile: s.cfg.OutputFile,
	}
	log := s.log

	log.WithFields(logrus.Fields{
		"dry_run":   s.opts.DryRun,
		"from_file": s.opts.FromFile,
	}).Info("Starting reconciliation run")

	var (
		statements []rendering.Statement
		err        error
	)

	if s.opts.FromFile != "" {
		statements, err = s.replay(log, report)
	} else {
		statements, err = s.generate(ctx, log, report)
	}

	if err != nil {
		report.Duration = time.Since(start)

		return report, err
	}

	s.execute(ctx, log, report, statements)
	s.evict(ctx, log, report)

	report.Duration = time.Since(start)

	log.WithFields(logrus.Fields{
		"statements": len(report.Statements),
		"failed":     len(report.Failed()),
		"duration":   report.Duration,
	}).Info("Reconciliation run finished")

	return report, nil
}

// generate fetches, transforms, renders and persists the statements
func (s *Service) generate(ctx context.Context, log logrus.FieldLogger, report *Report) ([]rendering.Statement, error) {
	report.Source = s.cfg.EMQX.ClientsURL()

	started := time.Now()

	records, err := s.fetcher.ListClients(ctx)
	if err == nil && len(records) == 0 {
		err = ErrNoClients
	}

	if err != nil {
		s.record(report, StageFetch, observability.StatusFailed, started, err)
		log.WithError(err).WithField("stage", StageFetch).Error("Failed to fetch broker clients, aborting run")

		return nil, fmt.Errorf("fetch: %w", err)
	}

	report.Clients = len(records)
	observability.ClientsFetched.Set(float64(len(records)))
	s.record(report, StageFetch, observability.StatusSuccess, started, nil)

	log.WithField("clients", len(records)).Info("Fetched broker clients")

	started = time.Now()
	params := s.transformer.Transform(records)
	report.Params = len(params)
	s.record(report, StageTransform, observability.StatusSuccess, started, nil)

	log.WithFields(logrus.Fields{
		"clients": len(records),
		"params":  len(params),
		"marker":  s.cfg.Transform.Marker,
	}).Info("Derived correction parameters")

	started = time.Now()

	statements, err := s.template.RenderAll(params)
	if err != nil {
		s.record(report, StageRender, observability.StatusFailed, started, err)
		log.WithError(err).WithField("stage", StageRender).Error("Failed to render statements, aborting run")

		return nil, fmt.Errorf("render: %w", err)
	}

	s.accept(report, statements)
	s.record(report, StageRender, observability.StatusSuccess, started, nil)

	started = time.Now()

	if err := sink.WriteStatements(s.cfg.OutputFile, statements); err != nil {
		s.record(report, StageSink, observability.StatusFailed, started, err)
		log.WithError(err).WithField("stage", StageSink).Error("Failed to write statements, continuing")
	} else {
		s.record(report, StageSink, observability.StatusSuccess, started, nil)
		log.WithFields(logrus.Fields{
			"path":       s.cfg.OutputFile,
			"statements": len(statements),
		}).Info("Wrote statements")
	}

	return statements, nil
}

// replay loads statements from a previously written artifact
func (s *Service) replay(log logrus.FieldLogger, report *Report) ([]rendering.Statement, error) {
	report.Source = s.opts.FromFile

	started := time.Now()

	statements, err := sink.ReadStatements(s.opts.FromFile)
	if err == nil && len(statements) == 0 {
		err = fmt.Errorf("%w: %s", ErrNoStatements, s.opts.FromFile)
	}

	if err != nil {
		s.record(report, StageFetch, observability.StatusFailed, started, err)
		log.WithError(err).WithField("stage", StageFetch).Error("Failed to load statements, aborting run")

		return nil, fmt.Errorf("replay: %w", err)
	}

	s.accept(report, statements)
	s.record(report, StageFetch, observability.StatusSuccess, started, nil)
	s.record(report, StageSink, observability.StatusSkipped, started, nil)

	log.WithFields(logrus.Fields{
		"path":       s.opts.FromFile,
		"statements": len(statements),
	}).Info("Loaded statements from artifact")

	return statements, nil
}

func (s *Service) accept(report *Report, statements []rendering.Statement) {
	report.Statements = statements
	observability.StatementsRendered.Set(float64(len(statements)))
}

func (s *Service) execute(ctx context.Context, log logrus.FieldLogger, report *Report, statements []rendering.Statement) {
	started := time.Now()

	if s.executor == nil {
		s.record(report, StageExecute, observability.StatusSkipped, started, nil)
		log.WithFields(logrus.Fields{
			"stage":   StageExecute,
			"dry_run": s.opts.DryRun,
		}).Info("SQL execution disabled, skipping")

		return
	}

	result, err := s.executor.Execute(ctx, statements)
	if err != nil {
		s.record(report, StageExecute, observability.StatusFailed, started, err)
		log.WithError(err).WithField("stage", StageExecute).Error("Failed to execute statements, nothing was committed")

		return
	}

	report.Execution = result
	observability.RowsAffected.Set(float64(result.RowsAffected))
	s.record(report, StageExecute, observability.StatusSuccess, started, nil)

	log.WithFields(logrus.Fields{
		"statements":    result.Statements,
		"rows_affected": result.RowsAffected,
	}).Info("Executed statements")
}

func (s *Service) evict(ctx context.Context, log logrus.FieldLogger, report *Report) {
	started := time.Now()

	if s.evictor == nil {
		s.record(report, StageEvict, observability.StatusSkipped, started, nil)
		log.WithFields(logrus.Fields{
			"stage":   StageEvict,
			"dry_run": s.opts.DryRun,
		}).Info("Cache cleanup disabled, skipping")

		return
	}

	result, err := s.evictor.Evict(ctx)
	if err != nil {
		s.record(report, StageEvict, observability.StatusFailed, started, err)
		log.WithError(err).WithField("stage", StageEvict).Error("Failed to evict cache keys")

		return
	}

	report.Eviction = result

	if errs := result.Errors(); len(errs) > 0 {
		err = errors.Join(errs...)
		s.record(report, StageEvict, observability.StatusFailed, started, err)
		log.WithError(err).WithFields(logrus.Fields{
			"stage":   StageEvict,
			"deleted": result.TotalDeleted(),
		}).Warn("Cache eviction finished with errors")

		return
	}

	s.record(report, StageEvict, observability.StatusSuccess, started, nil)
}

func (s *Service) record(report *Report, stage, status string, started time.Time, err error) {
	duration := time.Since(started)

	report.Stages = append(report.Stages, StageResult{
		Stage:    stage,
		Status:   status,
		Duration: duration,
		Err:      err,
	})

	observability.RecordStage(stage, status, duration.Seconds())
}
