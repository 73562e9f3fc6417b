package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/parquet-go/parquet-go"
)

// SequenceLengthRow is one patient's sequence length after preparation.
type SequenceLengthRow struct {
	PID      string `parquet:"pid"`
	Length   int64  `parquet:"length"`
	Positive bool   `parquet:"positive"`
}

// WriteSequenceLengths writes rows to a Snappy-compressed Parquet file.
func (s *FileStore) WriteSequenceLengths(path string, rows []SequenceLengthRow) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create sequence lengths parquet: %w", err)
	}
	writer := parquet.NewGenericWriter[SequenceLengthRow](file,
		parquet.Compression(&parquet.Snappy),
	)
	if _, err := writer.Write(rows); err != nil {
		writer.Close()
		file.Close()
		return fmt.Errorf("write sequence lengths: %w", err)
	}
	if err := writer.Close(); err != nil {
		file.Close()
		return fmt.Errorf("close sequence lengths writer: %w", err)
	}
	return file.Close()
}

func ReadSequenceLengths(path string) ([]SequenceLengthRow, error) {
	rows, err := parquet.ReadFile[SequenceLengthRow](path)
	if err != nil {
		return nil, fmt.Errorf("read sequence lengths: %w", err)
	}
	return rows, nil
}

// PatientCount is the number of patients and outcome-positive patients in a
// split.
type PatientCount struct {
	Split    string `json:"split"`
	Total    int    `json:"total"`
	Positive int    `json:"positive"`
}

// WritePatientCounts writes a "Patient Group" table with total and positive
// rows and one column per split.
func (s *FileStore) WritePatientCounts(path string, counts []PatientCount) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create patient counts: %w", err)
	}
	defer file.Close()

	header := []string{"Patient Group"}
	total := []string{"total"}
	positive := []string{"positive"}
	for _, c := range counts {
		header = append(header, c.Split)
		total = append(total, strconv.Itoa(c.Total))
		positive = append(positive, strconv.Itoa(c.Positive))
	}

	writer := csv.NewWriter(file)
	if err := writer.WriteAll([][]string{header, total, positive}); err != nil {
		return fmt.Errorf("write patient counts: %w", err)
	}
	return nil
}
