package executor

import (
	"fmt"

	"github.com/roach88/sqlscript/internal/engine"
	"github.com/roach88/sqlscript/internal/value"
)

// shape writes fetched rows into acc.
func shape(rows [][]engine.Column, acc *value.Object, childName string) error {
	switch len(rows) {
	case 0:
		return nil
	case 1:
		mergeRow(rows[0], acc)
		return nil
	}

	report, err := buildReport(rows)
	if err != nil {
		return err
	}
	if childName != "" {
		acc.Set(childName, report)
	} else {
		acc.SetReport(report)
	}
	return nil
}

func mergeRow(row []engine.Column, acc *value.Object) {
	for _, col := range row {
		acc.Set(col.Name, col.Value())
	}
}

// buildReport takes its header from the first row.
func buildReport(rows [][]engine.Column) (*value.Report, error) {
	if len(rows) == 0 {
		return value.NewReport(), nil
	}

	columns := make([]string, len(rows[0]))
	for i, col := range rows[0] {
		columns[i] = col.Name
	}
	report := value.NewReport(columns...)

	for n, row := range rows {
		cells := make([]value.Value, len(row))
		for i, col := range row {
			cells[i] = col.Value()
		}
		if err := report.Append(cells...); err != nil {
			return nil, fmt.Errorf("append row %d: %w", n, err)
		}
	}
	return report, nil
}
