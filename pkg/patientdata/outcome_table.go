package patientdata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// PIDKey names the patient id column of an outcome table.
const PIDKey = "PID"

// OutcomeTable is an externally produced table of outcome times keyed by
// patient id. Every column is index-aligned to PIDs.
type OutcomeTable struct {
	PIDs    []string
	Columns map[string][]Outcome
}

func (t *OutcomeTable) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	pidsRaw, ok := raw[PIDKey]
	if !ok {
		return ConfigError("outcome table has no %q column", PIDKey)
	}

	dec := json.NewDecoder(bytes.NewReader(pidsRaw))
	dec.UseNumber()
	var pids []interface{}
	if err := dec.Decode(&pids); err != nil {
		return fmt.Errorf("decode %s column: %w", PIDKey, err)
	}
	t.PIDs = make([]string, len(pids))
	for i, pid := range pids {
		t.PIDs[i] = fmt.Sprint(pid)
	}

	t.Columns = make(map[string][]Outcome, len(raw)-1)
	for name, column := range raw {
		if name == PIDKey {
			continue
		}
		var outcomes []Outcome
		if err := json.Unmarshal(column, &outcomes); err != nil {
			return fmt.Errorf("decode outcome column %q: %w", name, err)
		}
		t.Columns[name] = outcomes
	}
	return nil
}

func (t OutcomeTable) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(t.Columns)+1)
	out[PIDKey] = t.PIDs
	for name, column := range t.Columns {
		out[name] = column
	}
	return json.Marshal(out)
}

// ColumnNames returns outcome column names in a stable order.
func (t *OutcomeTable) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for name := range t.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Align returns column's outcomes in the order of pids, with Missing for ids
// the table does not know. unmatched counts those ids.
func (t *OutcomeTable) Align(pids []string, column string) (outcomes []Outcome, unmatched int, err error) {
	values, ok := t.Columns[column]
	if !ok {
		return nil, 0, ConfigError("outcome %q not found in outcome table (have %v)", column, t.ColumnNames())
	}
	if len(values) != len(t.PIDs) {
		return nil, 0, ConfigError("outcome %q has %d entries but table has %d PIDs", column, len(values), len(t.PIDs))
	}

	index := make(map[string]int, len(t.PIDs))
	for i, pid := range t.PIDs {
		index[pid] = i
	}
	outcomes = make([]Outcome, len(pids))
	for i, pid := range pids {
		idx, ok := index[pid]
		if !ok {
			unmatched++
			continue
		}
		outcomes[i] = values[idx]
	}
	return outcomes, unmatched, nil
}
