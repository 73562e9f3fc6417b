package preparer

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/synaptica-ai/ehrprep/pkg/patientdata"
)

// StageFunc transforms one split's dataset into the next value. It must not
// modify its input.
type StageFunc func(d *patientdata.Dataset) (*patientdata.Dataset, error)

// Stage is one labelled step of a preparation pipeline. Splits overrides Run
// for the named splits; a split with no applicable function passes through.
type Stage struct {
	Label          string
	Run            StageFunc
	Splits         map[string]StageFunc
	CheckPositives bool
}

func (s Stage) funcFor(split string) StageFunc {
	if fn, ok := s.Splits[split]; ok {
		return fn
	}
	return s.Run
}

// Splits holds one dataset per split name ("train", "val", ...).
type Splits map[string]*patientdata.Dataset

// Names returns split names in a stable order.
func (s Splits) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Pipeline applies stages to every split, strictly in order.
type Pipeline struct {
	stages []Stage
	log    logrus.FieldLogger
}

func NewPipeline(log logrus.FieldLogger, stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages, log: log}
}

func (p *Pipeline) Add(stages ...Stage) {
	p.stages = append(p.stages, stages...)
}

func (p *Pipeline) Labels() []string {
	labels := make([]string, len(p.stages))
	for i, s := range p.stages {
		labels[i] = s.Label
	}
	return labels
}

// Run folds the splits through every stage. The input map is not modified.
// Alignment is re-checked after each stage and the first failure aborts the
// run.
func (p *Pipeline) Run(splits Splits) (Splits, error) {
	current := make(Splits, len(splits))
	for name, d := range splits {
		current[name] = d
	}

	for _, stage := range p.stages {
		for _, split := range current.Names() {
			fn := stage.funcFor(split)
			if fn == nil {
				continue
			}
			next, err := fn(current[split])
			if err != nil {
				return nil, fmt.Errorf("%s (%s): %w", stage.Label, split, err)
			}
			if err := next.CheckLengths(); err != nil {
				return nil, fmt.Errorf("%s (%s): %w", stage.Label, split, err)
			}
			current[split] = next
		}
		p.logPatientNums(stage.Label, current)

		if stage.CheckPositives {
			if err := p.checkPositives(current); err != nil {
				return nil, fmt.Errorf("%s: %w", stage.Label, err)
			}
		}
	}
	return current, nil
}

func (p *Pipeline) logPatientNums(label string, splits Splits) {
	fields := logrus.Fields{"stage": label}
	for _, split := range splits.Names() {
		fields[split] = splits[split].Len()
	}
	p.log.WithFields(fields).Info("stage applied")
}

func (p *Pipeline) checkPositives(splits Splits) error {
	for _, split := range splits.Names() {
		d := splits[split]
		if err := CheckMinPositives(split, d); err != nil {
			return err
		}
		p.log.WithFields(logrus.Fields{"split": split, "positive": d.PositiveCount()}).Info("positive patients")
	}
	return nil
}
