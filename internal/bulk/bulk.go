// Package bulk parses producer seed files for mass onboarding. A seed file
// is a spreadsheet (XLSX or CSV) whose header row names onboarding fields;
// each data row pre-fills one producer's session.
package bulk

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// SeedRow is one producer's pre-filled onboarding data. Line is the 1-based
// row number in the source file (the header is line 1).
type SeedRow struct {
	Line       int
	ProducerID string
	Fields     map[string]string
}

// ReadSeedFile parses an XLSX or CSV seed file into seed rows. The first
// row must be a header; headers are normalized (case, spaces, dashes) so
// "GST Number" and "gst_number" name the same field. A producer_id column
// is optional — rows without one get a generated id at session start.
func ReadSeedFile(path string) ([]SeedRow, error) {
	var rows [][]string
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err = readXLSX(path)
	case ".csv":
		rows, err = readCSV(path)
	default:
		return nil, eris.Errorf("bulk: unsupported seed file type %q (want .xlsx or .csv)", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	return rowsToSeeds(rows)
}

func readXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "bulk: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("bulk: xlsx file has no sheets")
	}

	sheet := f.Sheets[0]
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "bulk: open csv")
	}
	defer f.Close() //nolint:errcheck

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1 // allow variable fields

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, eris.Wrap(err, "bulk: read csv row")
		}
		rows = append(rows, record)
	}
}

func rowsToSeeds(rows [][]string) ([]SeedRow, error) {
	if len(rows) == 0 {
		return nil, eris.New("bulk: seed file has no header row")
	}

	headers := make([]string, len(rows[0]))
	producerCol := -1
	for i, h := range rows[0] {
		headers[i] = normalizeHeader(h)
		if headers[i] == "producer_id" {
			producerCol = i
		}
	}

	var seeds []SeedRow
	for i, row := range rows[1:] {
		seed := SeedRow{
			Line:   i + 2, // header is line 1
			Fields: make(map[string]string),
		}
		for j, cell := range row {
			if j >= len(headers) {
				break
			}
			value := strings.TrimSpace(cell)
			if value == "" {
				continue
			}
			if j == producerCol {
				seed.ProducerID = value
				continue
			}
			if headers[j] == "" {
				continue
			}
			seed.Fields[headers[j]] = value
		}
		if seed.ProducerID == "" && len(seed.Fields) == 0 {
			continue // blank row
		}
		seeds = append(seeds, seed)
	}

	return seeds, nil
}

// normalizeHeader lowercases a column header and collapses spaces and
// dashes to underscores, so spreadsheet headings map onto field names.
func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, " ", "_")
	h = strings.ReplaceAll(h, "-", "_")
	return h
}
