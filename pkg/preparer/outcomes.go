package preparer

import (
	"github.com/sirupsen/logrus"
	"github.com/synaptica-ai/ehrprep/pkg/patientdata"
)

// AlignOutcomes orders table's column by pids. Ids the table does not cover get
// a missing outcome; partial coverage is logged, not an error.
func AlignOutcomes(log logrus.FieldLogger, table *patientdata.OutcomeTable, pids []string, column string) ([]patientdata.Outcome, error) {
	if table == nil {
		return nil, patientdata.ConfigError("no outcome table loaded for %q", column)
	}
	outcomes, unmatched, err := table.Align(pids, column)
	if err != nil {
		return nil, err
	}
	if unmatched > 0 {
		log.WithFields(logrus.Fields{
			"outcome":   column,
			"unmatched": unmatched,
			"patients":  len(pids),
		}).Warn("patient ids are not a subset of outcome ids")
	}
	return outcomes, nil
}

// AssignOutcomes attaches outcome and censor times to each patient. With an
// empty censorType every censor time is missing.
func AssignOutcomes(log logrus.FieldLogger, outcomes, censors *patientdata.OutcomeTable, outcomeType, censorType string) StageFunc {
	return func(d *patientdata.Dataset) (*patientdata.Dataset, error) {
		aligned, err := AlignOutcomes(log, outcomes, d.PIDs, outcomeType)
		if err != nil {
			return nil, err
		}
		censor := patientdata.MissingOutcomes(d.Len())
		if censorType != "" {
			if censor, err = AlignOutcomes(log, censors, d.PIDs, censorType); err != nil {
				return nil, err
			}
		}
		return d.WithOutcomes(aligned, censor), nil
	}
}
