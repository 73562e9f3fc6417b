package patientdata

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Outcome is either a present event time (or flag) or missing. The zero value
// is Missing, so a legitimate outcome at time 0 stays distinguishable.
type Outcome struct {
	value   float64
	present bool
}

var Missing = Outcome{}

func Present(v float64) Outcome {
	return Outcome{value: v, present: true}
}

func (o Outcome) IsPresent() bool { return o.present }

func (o Outcome) Value() (float64, bool) {
	return o.value, o.present
}

func (o Outcome) String() string {
	if !o.present {
		return "missing"
	}
	return strconv.FormatFloat(o.value, 'g', -1, 64)
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	if !o.present {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

func (o *Outcome) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = Missing
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Present(v)
	return nil
}

// CountPresent returns how many outcomes are present.
func CountPresent(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.present {
			n++
		}
	}
	return n
}

// MissingOutcomes returns n missing outcomes.
func MissingOutcomes(n int) []Outcome {
	return make([]Outcome, n)
}
