package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	defaultExcludeMinLen  = 3
	defaultCodeTypeMinLen = 2
	defaultMinAge         = 0
	defaultMaxAge         = 120
	defaultTruncationLen  = 512
	defaultTokenizedDir   = "tokenized"
	defaultTokenizedFile  = "tokenized_val.json"
	defaultTokenizedPids  = "pids_val.json"
	defaultRunName        = "prepared"
)

// PipelineConfig is the fully resolved configuration of one preparation run.
// Optional settings are pointers in the YAML form and become plain values with
// explicit enable flags once Resolve has run.
type PipelineConfig struct {
	Paths   PathsConfig   `yaml:"paths" json:"paths"`
	Data    DataConfig    `yaml:"data" json:"data"`
	Outcome OutcomeConfig `yaml:"outcome" json:"outcome"`
	Model   ModelConfig   `yaml:"model" json:"model"`
}

type PathsConfig struct {
	DataPath      string `yaml:"data_path" json:"data_path"`
	TokenizedDir  string `yaml:"tokenized_dir" json:"tokenized_dir"`
	TokenizedFile string `yaml:"tokenized_file" json:"tokenized_file"`
	TokenizedPids string `yaml:"tokenized_pids" json:"tokenized_pids"`
	OutputPath    string `yaml:"output_path" json:"output_path"`
	RunName       string `yaml:"run_name" json:"run_name"`
	// ModelPath holds pids_<mode>.json of the pretrained model's patients.
	ModelPath string `yaml:"model_path" json:"model_path"`
	Outcome   string `yaml:"outcome" json:"outcome"`
	Censor    string `yaml:"censor" json:"censor"`
	// FinetuneFeaturesPath holds prepared train/val splits for one-hot
	// encoding.
	FinetuneFeaturesPath string `yaml:"finetune_features_path" json:"finetune_features_path,omitempty"`
}

type DataConfig struct {
	MinLen           *int     `yaml:"min_len" json:"min_len,omitempty"`
	TruncationLen    int      `yaml:"truncation_len" json:"truncation_len"`
	MinAge           *float64 `yaml:"min_age" json:"min_age,omitempty"`
	MaxAge           *float64 `yaml:"max_age" json:"max_age,omitempty"`
	Gender           string   `yaml:"gender" json:"gender,omitempty"`
	CodeTypes        []string `yaml:"code_types" json:"code_types,omitempty"`
	NumPatients      int      `yaml:"num_patients" json:"num_patients,omitempty"`
	NumTrainPatients int      `yaml:"num_train_patients" json:"num_train_patients,omitempty"`
	NumValPatients   int      `yaml:"num_val_patients" json:"num_val_patients,omitempty"`
	Seed             int64    `yaml:"seed" json:"seed"`
	RemoveBackground bool     `yaml:"remove_background" json:"remove_background"`
	SelectCensored   bool     `yaml:"select_censored" json:"select_censored"`
	EncodePosOnly    bool     `yaml:"encode_pos_only" json:"encode_pos_only"`

	// Resolved values.
	ExcludeMinLen  int     `yaml:"-" json:"-"`
	CodeTypeMinLen int     `yaml:"-" json:"-"`
	AgeSelection   bool    `yaml:"-" json:"-"`
	AgeMin         float64 `yaml:"-" json:"-"`
	AgeMax         float64 `yaml:"-" json:"-"`
}

type OutcomeConfig struct {
	Type       string  `yaml:"type" json:"type"`
	CensorType string  `yaml:"censor_type" json:"censor_type,omitempty"`
	NHours     float64 `yaml:"n_hours" json:"n_hours"`
}

type ModelConfig struct {
	// TypeVocabSize is the number of segment ids the model can embed; 0
	// disables the check.
	TypeVocabSize int `yaml:"type_vocab_size" json:"type_vocab_size"`
}

// LoadPipeline reads a YAML pipeline config and resolves its defaults.
func LoadPipeline(path string) (*PipelineConfig, error) {
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read pipeline config: %w", err)
	}
	return ParsePipeline(content)
}

func ParsePipeline(content []byte) (*PipelineConfig, error) {
	var cfg PipelineConfig
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse pipeline config: %w", err)
	}
	cfg.Resolve()
	return &cfg, nil
}

// Resolve fills defaults. It is idempotent.
func (c *PipelineConfig) Resolve() {
	if c.Paths.TokenizedDir == "" {
		c.Paths.TokenizedDir = defaultTokenizedDir
	}
	if c.Paths.TokenizedFile == "" {
		c.Paths.TokenizedFile = defaultTokenizedFile
	}
	if c.Paths.TokenizedPids == "" {
		c.Paths.TokenizedPids = defaultTokenizedPids
	}
	if c.Paths.RunName == "" {
		c.Paths.RunName = defaultRunName
	}
	if c.Data.TruncationLen == 0 {
		c.Data.TruncationLen = defaultTruncationLen
	}

	c.Data.ExcludeMinLen = defaultExcludeMinLen
	c.Data.CodeTypeMinLen = defaultCodeTypeMinLen
	if c.Data.MinLen != nil {
		c.Data.ExcludeMinLen = *c.Data.MinLen
		c.Data.CodeTypeMinLen = *c.Data.MinLen
	}

	c.Data.AgeSelection = c.Data.MinAge != nil || c.Data.MaxAge != nil
	c.Data.AgeMin = defaultMinAge
	c.Data.AgeMax = defaultMaxAge
	if c.Data.MinAge != nil {
		c.Data.AgeMin = *c.Data.MinAge
	}
	if c.Data.MaxAge != nil {
		c.Data.AgeMax = *c.Data.MaxAge
	}
}

func (c *PipelineConfig) Validate() error {
	var errs []error
	if c.Paths.DataPath == "" {
		errs = append(errs, errors.New("paths.data_path is required"))
	}
	if c.Paths.OutputPath == "" {
		errs = append(errs, errors.New("paths.output_path is required"))
	}
	if c.Data.TruncationLen <= 0 {
		errs = append(errs, fmt.Errorf("data.truncation_len must be positive, got %d", c.Data.TruncationLen))
	}
	if c.Data.AgeMin > c.Data.AgeMax {
		errs = append(errs, fmt.Errorf("data.min_age %v exceeds data.max_age %v", c.Data.AgeMin, c.Data.AgeMax))
	}
	if c.Data.NumPatients < 0 || c.Data.NumTrainPatients < 0 || c.Data.NumValPatients < 0 {
		errs = append(errs, errors.New("patient counts must not be negative"))
	}
	return errors.Join(errs...)
}

// RunFolder is where a run writes its outputs.
func (c *PipelineConfig) RunFolder() string {
	return filepath.Join(c.Paths.OutputPath, c.Paths.RunName)
}

// TokenizedPath is the directory holding tokenized inputs.
func (c *PipelineConfig) TokenizedPath() string {
	return filepath.Join(c.Paths.DataPath, c.Paths.TokenizedDir)
}

// CensorsOnDifferentSignal reports whether censoring uses a different outcome
// than the prediction target. An unset censor type differs from any set
// outcome type, so positives without a censor time get dropped.
func (c *PipelineConfig) CensorsOnDifferentSignal() bool {
	return c.Outcome.Type != c.Outcome.CensorType
}
