package models

import (
	"time"

	"github.com/google/uuid"
)

// Event Bus models
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // dataset.prepare, dataset.prepared, dataset.failed
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// Preparation kinds
const (
	KindFinetune = "finetune"
	KindMLM      = "mlm"
	KindOneHot   = "onehot"
)

// PrepareRequest asks for one dataset preparation run. Either ConfigPath or an
// inline Config (the YAML document as a map) must be given.
type PrepareRequest struct {
	Kind       string                 `json:"kind"`
	ConfigPath string                 `json:"config_path,omitempty"`
	Config     map[string]interface{} `json:"config,omitempty"`
	RunName    string                 `json:"run_name,omitempty"`
}

type PreparationRun struct {
	ID           uuid.UUID              `json:"id"`
	Kind         string                 `json:"kind"`
	Config       map[string]interface{} `json:"config"`
	Status       string                 `json:"status"`
	CreatedAt    time.Time              `json:"created_at"`
	StartedAt    *time.Time             `json:"started_at,omitempty"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
	Summary      map[string]interface{} `json:"summary,omitempty"`
	OutputPath   string                 `json:"output_path,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
}
