package preparer

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/synaptica-ai/ehrprep/pkg/common/config"
	"github.com/synaptica-ai/ehrprep/pkg/patientdata"
	"github.com/synaptica-ai/ehrprep/pkg/storage"
)

const (
	vocabularyFile  = "vocabulary.json"
	patientNumsFile = "patient_nums.csv"
	modeFinetune    = "val"
	splitTrain      = "train"
	splitValidation = "val"
)

// Store is the persistence the preparer reads inputs from and writes outputs
// to.
type Store interface {
	LoadFeatures(path string) (patientdata.Features, error)
	LoadPIDs(path string) ([]string, error)
	LoadVocabulary(ctx context.Context, candidates ...string) (patientdata.Vocabulary, error)
	LoadOutcomeTable(path string) (*patientdata.OutcomeTable, error)
	LoadOutcomes(path string) ([]patientdata.Outcome, error)
	SaveJSON(path string, v interface{}) error
	WriteSequenceLengths(path string, rows []storage.SequenceLengthRow) error
	WritePatientCounts(path string, counts []storage.PatientCount) error
}

// Result describes the datasets a run produced.
type Result struct {
	Splits    Splits
	RunFolder string
	Stages    []string
	Counts    []storage.PatientCount
	Lengths   map[string]LengthSummary
}

// DatasetPreparer turns tokenized patient sequences into filtered, censored,
// truncated datasets according to a pipeline config. Inputs are read when a
// Prepare method starts and outputs are written once every stage succeeded.
type DatasetPreparer struct {
	cfg   *config.PipelineConfig
	store Store
	log   logrus.FieldLogger
}

func NewDatasetPreparer(cfg *config.PipelineConfig, store Store, log logrus.FieldLogger) (*DatasetPreparer, error) {
	if cfg == nil {
		return nil, patientdata.ConfigError("pipeline config is required")
	}
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", patientdata.ErrConfiguration, err)
	}
	if cfg.Data.Gender != "" {
		if _, ok := patientdata.ResolveGender(cfg.Data.Gender); !ok {
			return nil, patientdata.ConfigError("unknown gender %q", cfg.Data.Gender)
		}
	}
	return &DatasetPreparer{cfg: cfg, store: store, log: log}, nil
}

// PrepareFinetune prepares the single fine-tuning dataset: pretraining
// patients are excluded, outcomes attached, records censored, then filtered,
// truncated and normalized.
func (p *DatasetPreparer) PrepareFinetune(ctx context.Context) (*Result, error) {
	if p.cfg.Outcome.Type == "" || p.cfg.Paths.Outcome == "" {
		return nil, patientdata.ConfigError("fine-tuning needs outcome.type and paths.outcome")
	}
	data, err := p.loadFinetuneData(ctx)
	if err != nil {
		return nil, err
	}

	var pretrainPIDs []string
	if p.cfg.Paths.ModelPath != "" {
		pretrainPIDs, err = p.store.LoadPIDs(filepath.Join(p.cfg.Paths.ModelPath, fmt.Sprintf("pids_%s.json", data.Mode)))
		if err != nil {
			return nil, fmt.Errorf("load pretrain pids: %w", err)
		}
	}

	p.log.WithFields(logrus.Fields{"outcome": p.cfg.Paths.Outcome, "censor": p.censorPath()}).Info("loading outcomes")
	outcomes, err := p.store.LoadOutcomeTable(p.cfg.Paths.Outcome)
	if err != nil {
		return nil, err
	}
	censors := outcomes
	if p.cfg.Paths.Censor != "" {
		if censors, err = p.store.LoadOutcomeTable(p.cfg.Paths.Censor); err != nil {
			return nil, err
		}
	}

	pipeline := p.FinetunePipeline(pretrainPIDs, outcomes, censors)
	splits, err := pipeline.Run(Splits{modeFinetune: data})
	if err != nil {
		return nil, err
	}
	if err := p.checkPositives(splits); err != nil {
		return nil, err
	}

	result := &Result{Splits: splits, RunFolder: p.cfg.RunFolder(), Stages: pipeline.Labels()}
	final := splits[modeFinetune]
	if err := p.saveDataset(final, ""); err != nil {
		return nil, err
	}
	if err := p.saveOutcomes(final, ""); err != nil {
		return nil, err
	}
	if err := p.finish(result); err != nil {
		return nil, err
	}
	return result, nil
}

// FinetunePipeline lists the fine-tuning stages in the order they run.
func (p *DatasetPreparer) FinetunePipeline(pretrainPIDs []string, outcomes, censors *patientdata.OutcomeTable) *Pipeline {
	data := p.cfg.Data
	outcome := p.cfg.Outcome
	pipeline := NewPipeline(p.log)

	if pretrainPIDs != nil {
		pipeline.Add(Stage{Label: "exclude pretrain patients", Run: ExcludePIDs(pretrainPIDs)})
	}
	if data.NumPatients > 0 {
		pipeline.Add(Stage{
			Label:  "select random subset",
			Splits: map[string]StageFunc{modeFinetune: SelectRandomSubset(data.NumPatients, data.Seed)},
		})
	}
	if data.Gender != "" {
		pipeline.Add(Stage{Label: "select by gender", Run: SelectByGender(data.Gender)})
	}
	pipeline.Add(Stage{
		Label:          "assign outcomes",
		Run:            AssignOutcomes(p.log, outcomes, censors, outcome.Type, outcome.CensorType),
		CheckPositives: true,
	})
	if data.EncodePosOnly {
		pipeline.Add(Stage{Label: "select positives", Run: SelectPositives()})
	}
	if data.SelectCensored {
		pipeline.Add(Stage{Label: "select censored", Run: SelectCensored(), CheckPositives: true})
	}
	if p.cfg.CensorsOnDifferentSignal() {
		pipeline.Add(Stage{Label: "filter outcome before censor", Run: FilterOutcomeBeforeCensor(outcome.NHours), CheckPositives: true})
	}
	if len(data.CodeTypes) > 0 {
		pipeline.Add(Stage{Label: "filter code types", Run: FilterCodeTypes(data.CodeTypes, data.CodeTypeMinLen), CheckPositives: true})
	}
	pipeline.Add(
		Stage{Label: "censor", Run: CensorData(outcome.NHours), CheckPositives: true},
		Stage{Label: "exclude short sequences", Run: ExcludeShortSequences(data.ExcludeMinLen)},
	)
	if data.AgeSelection {
		pipeline.Add(Stage{Label: "select by age", Run: SelectByAge(data.AgeMin, data.AgeMax), CheckPositives: true})
	}
	p.addTail(pipeline)
	return pipeline
}

// PrepareMLM prepares the train and validation datasets for masked-language
// pretraining.
func (p *DatasetPreparer) PrepareMLM(ctx context.Context) (*Result, error) {
	splits, vocab, err := p.loadTokenizedData(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.store.SaveJSON(filepath.Join(p.cfg.RunFolder(), vocabularyFile), vocab); err != nil {
		return nil, err
	}

	pipeline := p.MLMPipeline()
	splits, err = pipeline.Run(splits)
	if err != nil {
		return nil, err
	}
	for _, name := range splits.Names() {
		if err := CheckMaxSegment(splits[name], p.cfg.Model.TypeVocabSize); err != nil {
			return nil, err
		}
	}

	result := &Result{Splits: splits, RunFolder: p.cfg.RunFolder(), Stages: pipeline.Labels()}
	for _, name := range splits.Names() {
		if err := p.saveDataset(splits[name], "_"+name); err != nil {
			return nil, err
		}
	}
	if err := p.finish(result); err != nil {
		return nil, err
	}
	return result, nil
}

// MLMPipeline lists the pretraining stages in the order they run.
func (p *DatasetPreparer) MLMPipeline() *Pipeline {
	data := p.cfg.Data
	pipeline := NewPipeline(p.log)
	if data.NumTrainPatients > 0 || data.NumValPatients > 0 {
		pipeline.Add(Stage{
			Label: "select random subset",
			Splits: map[string]StageFunc{
				splitTrain:      SelectRandomSubset(data.NumTrainPatients, data.Seed),
				splitValidation: SelectRandomSubset(data.NumValPatients, data.Seed),
			},
		})
	}
	p.addTail(pipeline)
	return pipeline
}

// addTail appends the stages both flows end with. Normalization follows
// truncation because truncation can drop a leading segment.
func (p *DatasetPreparer) addTail(pipeline *Pipeline) {
	if p.cfg.Data.RemoveBackground {
		pipeline.Add(Stage{Label: "remove background", Run: RemoveBackground()})
	}
	pipeline.Add(
		Stage{Label: "truncate", Run: Truncate(p.cfg.Data.TruncationLen)},
		Stage{Label: "normalize segments", Run: NormalizeSegments()},
	)
}

func (p *DatasetPreparer) checkPositives(splits Splits) error {
	for _, name := range splits.Names() {
		if err := CheckMinPositives(name, splits[name]); err != nil {
			return err
		}
	}
	return nil
}

func (p *DatasetPreparer) loadFinetuneData(ctx context.Context) (*patientdata.Dataset, error) {
	dir := p.cfg.TokenizedPath()
	p.log.WithField("path", dir).Info("loading tokenized data")
	features, err := p.store.LoadFeatures(filepath.Join(dir, p.cfg.Paths.TokenizedFile))
	if err != nil {
		return nil, err
	}
	pids, err := p.store.LoadPIDs(filepath.Join(dir, p.cfg.Paths.TokenizedPids))
	if err != nil {
		return nil, err
	}
	vocab, err := p.loadVocabulary(ctx)
	if err != nil {
		return nil, err
	}
	data := patientdata.New(features, pids, vocab, modeFinetune)
	if err := data.CheckLengths(); err != nil {
		return nil, fmt.Errorf("tokenized input: %w", err)
	}
	return data, nil
}

func (p *DatasetPreparer) loadTokenizedData(ctx context.Context) (Splits, patientdata.Vocabulary, error) {
	dir := p.cfg.TokenizedPath()
	vocab, err := p.loadVocabulary(ctx)
	if err != nil {
		return nil, nil, err
	}
	splits := make(Splits, 2)
	for _, split := range []string{splitTrain, splitValidation} {
		p.log.WithFields(logrus.Fields{"path": dir, "split": split}).Info("loading tokenized data")
		features, err := p.store.LoadFeatures(filepath.Join(dir, fmt.Sprintf("tokenized_%s.json", split)))
		if err != nil {
			return nil, nil, err
		}
		pids, err := p.store.LoadPIDs(filepath.Join(dir, fmt.Sprintf("pids_%s.json", split)))
		if err != nil {
			return nil, nil, err
		}
		data := patientdata.New(features, pids, vocab, split)
		if err := data.CheckLengths(); err != nil {
			return nil, nil, fmt.Errorf("tokenized %s input: %w", split, err)
		}
		splits[split] = data
	}
	return splits, vocab, nil
}

// loadVocabulary looks next to the tokenized data first, then in the data
// root.
func (p *DatasetPreparer) loadVocabulary(ctx context.Context) (patientdata.Vocabulary, error) {
	return p.store.LoadVocabulary(ctx,
		filepath.Join(p.cfg.TokenizedPath(), vocabularyFile),
		filepath.Join(p.cfg.Paths.DataPath, vocabularyFile),
	)
}

func (p *DatasetPreparer) saveDataset(d *patientdata.Dataset, suffix string) error {
	folder := p.cfg.RunFolder()
	if err := p.store.SaveJSON(filepath.Join(folder, "features"+suffix+".json"), d.Features); err != nil {
		return err
	}
	return p.store.SaveJSON(filepath.Join(folder, "pids"+suffix+".json"), d.PIDs)
}

func (p *DatasetPreparer) saveOutcomes(d *patientdata.Dataset, suffix string) error {
	folder := p.cfg.RunFolder()
	if err := p.store.SaveJSON(filepath.Join(folder, "outcomes"+suffix+".json"), d.Outcomes); err != nil {
		return err
	}
	return p.store.SaveJSON(filepath.Join(folder, "censor_outcomes"+suffix+".json"), d.CensorOutcomes)
}

// finish writes sequence-length statistics and the patient count table.
func (p *DatasetPreparer) finish(result *Result) error {
	result.Lengths = make(map[string]LengthSummary, len(result.Splits))
	for _, name := range result.Splits.Names() {
		d := result.Splits[name]
		if err := p.saveSequenceLengths(d); err != nil {
			return err
		}
		summary := SummarizeLengths(d)
		result.Lengths[name] = summary
		p.log.WithFields(logrus.Fields{
			"split":  name,
			"count":  summary.Count,
			"mean":   summary.Mean,
			"median": summary.Median,
			"max":    summary.Max,
		}).Info("sequence lengths")
	}
	result.Counts = PatientCounts(result.Splits)
	return p.store.WritePatientCounts(filepath.Join(result.RunFolder, patientNumsFile), result.Counts)
}

// saveSequenceLengths writes one file per split, or a positive and a negative
// file when outcomes are assigned.
func (p *DatasetPreparer) saveSequenceLengths(d *patientdata.Dataset) error {
	folder := p.cfg.RunFolder()
	rows := SequenceLengthRows(d)
	if !d.HasOutcomes() {
		return p.store.WriteSequenceLengths(filepath.Join(folder, fmt.Sprintf("sequence_lengths_%s.parquet", d.Mode)), rows)
	}
	var pos, neg []storage.SequenceLengthRow
	for _, row := range rows {
		if row.Positive {
			pos = append(pos, row)
		} else {
			neg = append(neg, row)
		}
	}
	if err := p.store.WriteSequenceLengths(filepath.Join(folder, fmt.Sprintf("sequence_lengths_%s_pos.parquet", d.Mode)), pos); err != nil {
		return err
	}
	return p.store.WriteSequenceLengths(filepath.Join(folder, fmt.Sprintf("sequence_lengths_%s_neg.parquet", d.Mode)), neg)
}

func (p *DatasetPreparer) censorPath() string {
	if p.cfg.Paths.Censor != "" {
		return p.cfg.Paths.Censor
	}
	return p.cfg.Paths.Outcome
}
