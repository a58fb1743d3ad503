// Package dataset loads input documents from JSONL or CSV files.
package dataset

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"cbsent/internal/config"
	"cbsent/internal/domain"
)

const dateLayout = "2006-01-02"

// Unknown fills metadata columns the input does not carry.
const Unknown = "Unknown"

var (
	textColumns = []string{"text", "content", "speech", "body"}
	idColumns   = []string{"id", "speech_id", "index"}
)

// ErrNoTextColumn is returned when no column holds the document text.
var ErrNoTextColumn = errors.New("dataset: no text column")

// Filter keeps documents dated inside [Start, End]. Zero bounds are open.
type Filter struct {
	Start time.Time
	End   time.Time
}

// NewFilter parses the dataset date bounds from config.
func NewFilter(cfg config.DatasetConfig) (Filter, error) {
	var f Filter
	var err error
	if cfg.StartDate != "" {
		if f.Start, err = time.Parse(dateLayout, cfg.StartDate); err != nil {
			return f, fmt.Errorf("dataset.start_date: %w", err)
		}
	}
	if cfg.EndDate != "" {
		if f.End, err = time.Parse(dateLayout, cfg.EndDate); err != nil {
			return f, fmt.Errorf("dataset.end_date: %w", err)
		}
	}
	return f, nil
}

// Active reports whether either bound is set.
func (f Filter) Active() bool {
	return !f.Start.IsZero() || !f.End.IsZero()
}

// Keep reports whether a document date falls inside the filter. Only the
// leading YYYY-MM-DD of the date is considered.
func (f Filter) Keep(date string) bool {
	if !f.Active() {
		return true
	}
	if len(date) < len(dateLayout) {
		return false
	}
	d, err := time.Parse(dateLayout, date[:len(dateLayout)])
	if err != nil {
		return false
	}
	if !f.Start.IsZero() && d.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && d.After(f.End) {
		return false
	}
	return true
}

// Loader reads documents and applies the date filter.
type Loader struct {
	filter Filter
	logger *zap.Logger
}

// NewLoader creates a Loader.
func NewLoader(filter Filter, logger *zap.Logger) *Loader {
	return &Loader{filter: filter, logger: logger}
}

// Load reads path, choosing the format by extension (.csv, otherwise JSONL).
func (l *Loader) Load(path string) ([]domain.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()

	var rows []map[string]string
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		rows, err = readCSV(f)
	} else {
		rows, err = readJSONL(f)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	docs, err := l.fromRows(rows)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	l.logger.Info("dataset loaded",
		zap.String("path", path),
		zap.Int("rows", len(rows)),
		zap.Int("documents", len(docs)),
	)
	return docs, nil
}

func (l *Loader) fromRows(rows []map[string]string) ([]domain.Document, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	cols := columnsOf(rows)
	textCol := pick(cols, textColumns)
	if textCol == "" {
		return nil, fmt.Errorf("%w (have %s)", ErrNoTextColumn, strings.Join(cols, ", "))
	}
	idCol := pick(cols, idColumns)
	authorCol := containing(cols, "speaker", "author")
	institutionCol := containing(cols, "institution", "country")
	dateCol := containing(cols, "date")

	docs := make([]domain.Document, 0, len(rows))
	skipped := 0
	for i, row := range rows {
		doc := domain.Document{
			ID:          "speech_" + strconv.Itoa(i),
			Text:        row[textCol],
			Author:      valueOr(row, authorCol),
			Institution: valueOr(row, institutionCol),
			Date:        valueOr(row, dateCol),
		}
		if idCol != "" && row[idCol] != "" {
			doc.ID = row[idCol]
		}
		if strings.TrimSpace(doc.Text) == "" {
			skipped++
			continue
		}
		if !l.filter.Keep(doc.Date) {
			skipped++
			continue
		}
		docs = append(docs, doc)
	}
	if skipped > 0 {
		l.logger.Debug("dataset rows skipped", zap.Int("skipped", skipped))
	}
	return docs, nil
}

func readJSONL(r io.Reader) ([]map[string]string, error) {
	var rows []map[string]string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var raw map[string]interface{}
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		row := make(map[string]string, len(raw))
		for k, v := range raw {
			row[k] = stringify(v)
		}
		rows = append(rows, row)
	}
	return rows, scanner.Err()
}

func readCSV(r io.Reader) ([]map[string]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rows []map[string]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// columnsOf returns the column names in first-seen order.
func columnsOf(rows []map[string]string) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, row := range rows {
		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	return cols
}

func pick(cols, candidates []string) string {
	for _, c := range candidates {
		for _, col := range cols {
			if col == c {
				return col
			}
		}
	}
	return ""
}

func containing(cols []string, needles ...string) string {
	for _, n := range needles {
		for _, col := range cols {
			if strings.Contains(strings.ToLower(col), n) {
				return col
			}
		}
	}
	return ""
}

func valueOr(row map[string]string, col string) string {
	if col == "" || strings.TrimSpace(row[col]) == "" {
		return Unknown
	}
	return row[col]
}
