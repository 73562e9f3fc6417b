package runs

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/synaptica-ai/ehrprep/pkg/common/config"
	"github.com/synaptica-ai/ehrprep/pkg/common/logger"
	"github.com/synaptica-ai/ehrprep/pkg/common/models"
	"github.com/synaptica-ai/ehrprep/pkg/observability/metrics"
	"github.com/synaptica-ai/ehrprep/pkg/patientdata"
	"github.com/synaptica-ai/ehrprep/pkg/preparer"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
)

const (
	EventPrepared = "dataset.prepared"
	EventFailed   = "dataset.failed"

	eventSource = "prep-service"
)

// RunStore persists run records. *Repository implements it.
type RunStore interface {
	Create(ctx context.Context, run *RunModel) error
	UpdateStatus(ctx context.Context, runID uuid.UUID, status string, summary map[string]interface{}, outputPath, errorMessage string) error
	SetTimestamps(ctx context.Context, runID uuid.UUID, startedAt, completedAt *time.Time) error
	Get(ctx context.Context, runID uuid.UUID) (*RunModel, error)
	List(ctx context.Context, status string, limit int) ([]RunModel, error)
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error
}

// Roots anchor relative paths in requests.
type Roots struct {
	DataRoot   string
	OutputRoot string
}

type Service struct {
	repo      RunStore
	files     preparer.Store
	publisher EventPublisher
	roots     Roots
	workerSem chan struct{}
	wg        sync.WaitGroup
}

// NewService wires a run service. publisher may be nil, in which case no
// events are emitted.
func NewService(repo RunStore, files preparer.Store, publisher EventPublisher, roots Roots, maxWorkers int) *Service {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &Service{
		repo:      repo,
		files:     files,
		publisher: publisher,
		roots:     roots,
		workerSem: make(chan struct{}, maxWorkers),
	}
}

// Create validates the request, records a queued run and starts it in the
// background. Configuration problems are returned before anything is stored.
func (s *Service) Create(ctx context.Context, req models.PrepareRequest) (models.PreparationRun, error) {
	if !validKind(req.Kind) {
		return models.PreparationRun{}, patientdata.ConfigError("unknown preparation kind %q", req.Kind)
	}
	cfg, err := s.pipelineConfig(req)
	if err != nil {
		return models.PreparationRun{}, err
	}

	runID := uuid.New()
	prep, err := preparer.NewDatasetPreparer(cfg, s.files, logger.WithRun(runID.String()))
	if err != nil {
		return models.PreparationRun{}, err
	}

	configMap, err := configToMap(cfg)
	if err != nil {
		return models.PreparationRun{}, err
	}
	now := time.Now().UTC()
	run := &RunModel{
		ID:         runID,
		Kind:       req.Kind,
		Config:     datatypes.JSONMap(configMap),
		Status:     StatusQueued,
		OutputPath: cfg.RunFolder(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, run); err != nil {
		return models.PreparationRun{}, fmt.Errorf("record run: %w", err)
	}

	metrics.RunQueued()
	s.wg.Add(1)
	go s.run(runID, req.Kind, prep)
	return toDomain(run), nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (models.PreparationRun, error) {
	run, err := s.repo.Get(ctx, id)
	if err != nil {
		return models.PreparationRun{}, err
	}
	return toDomain(run), nil
}

func (s *Service) List(ctx context.Context, status string, limit int) ([]models.PreparationRun, error) {
	runs, err := s.repo.List(ctx, status, limit)
	if err != nil {
		return nil, err
	}
	results := make([]models.PreparationRun, 0, len(runs))
	for i := range runs {
		results = append(results, toDomain(&runs[i]))
	}
	return results, nil
}

// HandleEvent accepts dataset.prepare requests arriving over the event bus.
func (s *Service) HandleEvent(ctx context.Context, event models.Event) error {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("encode event data: %w", err)
	}
	var req models.PrepareRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decode prepare request: %w", err)
	}
	run, err := s.Create(ctx, req)
	if err != nil {
		if patientdata.IsConfigurationError(err) {
			// A bad request will not get better on redelivery.
			logger.Log.WithError(err).WithField("event_id", event.ID).Warn("rejected prepare request")
			return nil
		}
		return err
	}
	logger.WithRun(run.ID.String()).WithField("event_id", event.ID).Info("prepare request accepted")
	return nil
}

// Wait blocks until every started run has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) run(runID uuid.UUID, kind string, prep *preparer.DatasetPreparer) {
	defer s.wg.Done()
	s.workerSem <- struct{}{}
	defer func() { <-s.workerSem }()
	metrics.RunStarted()

	ctx := context.Background()
	log := logger.WithRun(runID.String())
	start := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, runID, StatusRunning, nil, "", ""); err != nil {
		log.WithError(err).Error("failed to mark run running")
	}
	if err := s.repo.SetTimestamps(ctx, runID, &start, nil); err != nil {
		log.WithError(err).Error("failed to set start timestamp")
	}

	summary, outputPath, err := execute(ctx, kind, prep)
	if err != nil {
		metrics.RunFinished(err, patientdata.IsInvariantError(err), 0)
		s.failRun(ctx, runID, kind, err)
		return
	}
	metrics.RunFinished(nil, false, patientTotal(summary))
	summary["duration_seconds"] = time.Since(start).Seconds()

	if err := s.repo.UpdateStatus(ctx, runID, StatusCompleted, summary, outputPath, ""); err != nil {
		log.WithError(err).Error("failed to mark run complete")
	}
	completed := time.Now().UTC()
	if err := s.repo.SetTimestamps(ctx, runID, nil, &completed); err != nil {
		log.WithError(err).Error("failed to set completion timestamp")
	}
	log.WithField("output_path", outputPath).Info("preparation run completed")

	s.publish(ctx, EventPrepared, map[string]interface{}{
		"run_id":      runID.String(),
		"kind":        kind,
		"output_path": outputPath,
		"summary":     summary,
	})
}

func (s *Service) failRun(ctx context.Context, runID uuid.UUID, kind string, err error) {
	logger.WithRun(runID.String()).WithError(err).Error("preparation run failed")
	_ = s.repo.UpdateStatus(ctx, runID, StatusFailed, nil, "", err.Error())
	completed := time.Now().UTC()
	_ = s.repo.SetTimestamps(ctx, runID, nil, &completed)

	s.publish(ctx, EventFailed, map[string]interface{}{
		"run_id":        runID.String(),
		"kind":          kind,
		"error_message": err.Error(),
		"invariant":     patientdata.IsInvariantError(err),
	})
}

func (s *Service) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishEvent(ctx, eventType, eventSource, data); err != nil {
		logger.Log.WithError(err).WithField("event_type", eventType).Warn("failed to publish run event")
	}
}

// pipelineConfig builds the run's pipeline config from an inline document or a
// config file. Relative input paths are anchored at the data root, relative
// output paths at the output root.
func (s *Service) pipelineConfig(req models.PrepareRequest) (*config.PipelineConfig, error) {
	var (
		cfg *config.PipelineConfig
		err error
	)
	switch {
	case len(req.Config) > 0:
		var content []byte
		content, err = yaml.Marshal(req.Config)
		if err != nil {
			return nil, patientdata.ConfigError("encode inline config: %v", err)
		}
		cfg, err = config.ParsePipeline(content)
	case req.ConfigPath != "":
		cfg, err = config.LoadPipeline(req.ConfigPath)
	default:
		return nil, patientdata.ConfigError("request needs config or config_path")
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", patientdata.ErrConfiguration, err)
	}

	if req.RunName != "" {
		cfg.Paths.RunName = req.RunName
	}
	if cfg.Paths.OutputPath == "" {
		cfg.Paths.OutputPath = s.roots.OutputRoot
	}
	cfg.Paths.DataPath = anchor(s.roots.DataRoot, cfg.Paths.DataPath)
	cfg.Paths.Outcome = anchor(s.roots.DataRoot, cfg.Paths.Outcome)
	cfg.Paths.Censor = anchor(s.roots.DataRoot, cfg.Paths.Censor)
	cfg.Paths.OutputPath = anchor(s.roots.OutputRoot, cfg.Paths.OutputPath)
	cfg.Paths.FinetuneFeaturesPath = anchor(s.roots.OutputRoot, cfg.Paths.FinetuneFeaturesPath)
	return cfg, nil
}

func anchor(root, path string) string {
	if path == "" || root == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

func validKind(kind string) bool {
	switch kind {
	case models.KindFinetune, models.KindMLM, models.KindOneHot:
		return true
	}
	return false
}

func execute(ctx context.Context, kind string, prep *preparer.DatasetPreparer) (map[string]interface{}, string, error) {
	switch kind {
	case models.KindMLM:
		result, err := prep.PrepareMLM(ctx)
		if err != nil {
			return nil, "", err
		}
		return summarize(result), result.RunFolder, nil
	case models.KindOneHot:
		result, err := prep.PrepareOneHot(ctx)
		if err != nil {
			return nil, "", err
		}
		trainRows, cols := result.Train.Dims()
		valRows, _ := result.Val.Dims()
		return map[string]interface{}{
			"train_patients": trainRows,
			"val_patients":   valRows,
			"columns":        cols,
		}, result.RunFolder, nil
	default:
		result, err := prep.PrepareFinetune(ctx)
		if err != nil {
			return nil, "", err
		}
		return summarize(result), result.RunFolder, nil
	}
}

func summarize(result *preparer.Result) map[string]interface{} {
	counts := make(map[string]interface{}, len(result.Counts))
	for _, c := range result.Counts {
		counts[c.Split] = map[string]interface{}{
			"total":    c.Total,
			"positive": c.Positive,
		}
	}
	lengths := make(map[string]interface{}, len(result.Lengths))
	for split, l := range result.Lengths {
		lengths[split] = l
	}
	return map[string]interface{}{
		"patients":         counts,
		"sequence_lengths": lengths,
		"stages":           result.Stages,
	}
}

func patientTotal(summary map[string]interface{}) int {
	total := 0
	if counts, ok := summary["patients"].(map[string]interface{}); ok {
		for _, c := range counts {
			if split, ok := c.(map[string]interface{}); ok {
				if n, ok := split["total"].(int); ok {
					total += n
				}
			}
		}
		return total
	}
	for _, key := range []string{"train_patients", "val_patients"} {
		if n, ok := summary[key].(int); ok {
			total += n
		}
	}
	return total
}

func configToMap(cfg *config.PipelineConfig) (map[string]interface{}, error) {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode pipeline config: %w", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("decode pipeline config: %w", err)
	}
	return out, nil
}

func toDomain(run *RunModel) models.PreparationRun {
	result := models.PreparationRun{
		ID:           run.ID,
		Kind:         run.Kind,
		Status:       run.Status,
		CreatedAt:    run.CreatedAt,
		StartedAt:    run.StartedAt,
		CompletedAt:  run.CompletedAt,
		OutputPath:   run.OutputPath,
		ErrorMessage: run.ErrorMessage,
	}
	if run.Config != nil {
		result.Config = map[string]interface{}(run.Config)
	}
	if run.Summary != nil {
		result.Summary = map[string]interface{}(run.Summary)
	}
	return result
}
