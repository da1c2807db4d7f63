// Package rankings loads university ranking tables (CSV or XLSX) and
// applies them to the institution directory.
package rankings

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Row is one institution's entry in a ranking table.
type Row struct {
	Institution string
	Rank        int
	Score       float64
	Country     string
}

// Load reads a ranking table from a CSV or XLSX file. The first row is the
// header; institution, rank, score, and country columns are located by name.
func Load(path string) ([]Row, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return loadCSV(path)
	case ".xlsx":
		return loadXLSX(path)
	default:
		return nil, eris.Errorf("rankings: unsupported file type %s", filepath.Ext(path))
	}
}

func loadCSV(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "rankings: open csv")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "rankings: read csv")
	}
	return parseTable(records)
}

func loadXLSX(path string) ([]Row, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "rankings: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("rankings: xlsx has no sheets")
	}

	var records [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		records = append(records, cells)
	}
	return parseTable(records)
}

// columnAliases maps header spellings to canonical column roles.
var columnAliases = map[string]string{
	"institution":      "institution",
	"institution name": "institution",
	"university":       "institution",
	"name":             "institution",
	"rank":             "rank",
	"rank display":     "rank",
	"world rank":       "rank",
	"score":            "score",
	"overall score":    "score",
	"country":          "country",
	"location":         "country",
	"country/territory": "country",
}

func parseTable(records [][]string) ([]Row, error) {
	if len(records) == 0 {
		return nil, eris.New("rankings: empty table")
	}

	cols := make(map[string]int)
	for i, h := range records[0] {
		if role, ok := columnAliases[strings.ToLower(strings.TrimSpace(h))]; ok {
			if _, seen := cols[role]; !seen {
				cols[role] = i
			}
		}
	}
	if _, ok := cols["institution"]; !ok {
		return nil, eris.New("rankings: no institution column in header")
	}
	if _, ok := cols["rank"]; !ok {
		return nil, eris.New("rankings: no rank column in header")
	}

	var rows []Row
	for _, rec := range records[1:] {
		name := cell(rec, cols["institution"])
		if name == "" {
			continue
		}
		rank, ok := parseRank(cell(rec, cols["rank"]))
		if !ok {
			continue
		}
		row := Row{Institution: name, Rank: rank}
		if i, has := cols["score"]; has {
			row.Score, _ = strconv.ParseFloat(cell(rec, i), 64)
		}
		if i, has := cols["country"]; has {
			row.Country = cell(rec, i)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func cell(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// parseRank handles the display forms ranking tables use: "14", "=14" for
// ties, "601-650" for bands (the band start is kept), and "1201+".
func parseRank(s string) (int, bool) {
	s = strings.TrimSpace(strings.TrimPrefix(s, "="))
	if s == "" {
		return 0, false
	}
	if i := strings.IndexAny(s, "-+"); i > 0 {
		s = s[:i]
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
