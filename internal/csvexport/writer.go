package csvexport

import (
	"bytes"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"cbsent/internal/domain"
)

// KeySentenceSeparator joins key sentences into a single cell.
const KeySentenceSeparator = " | "

// Columns is the merged table header row.
var Columns = []string{
	"correlation_id",
	"author",
	"institution",
	"date",
	"hawkish_dovish_score",
	"topic_inflation",
	"topic_growth",
	"topic_financial_stability",
	"topic_labor_market",
	"topic_international",
	"uncertainty",
	"forward_guidance_strength",
	"market_stocks",
	"market_bonds",
	"market_currency",
	"market_reasoning",
	"key_sentences",
	"summary",
	"chunk_file",
}

// Writer wraps csv.Writer for exporting merged result rows.
type Writer struct {
	csv *csv.Writer
}

// NewWriter creates a Writer that writes CSV to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{csv: csv.NewWriter(w)}
}

// WriteHeader writes the header row.
func (w *Writer) WriteHeader() error {
	return w.csv.Write(Columns)
}

// WriteRows converts result rows to CSV records and writes them.
func (w *Writer) WriteRows(rows []domain.ResultRow) error {
	for i := range rows {
		if err := w.csv.Write(Record(&rows[i])); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes the underlying csv.Writer buffer.
func (w *Writer) Flush() {
	w.csv.Flush()
}

// Error returns any error from the underlying csv.Writer.
func (w *Writer) Error() error {
	return w.csv.Error()
}

// Encode renders the full table, header included. Equal rows always produce
// identical bytes.
func Encode(rows []domain.ResultRow) ([]byte, error) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteHeader(); err != nil {
		return nil, err
	}
	if err := w.WriteRows(rows); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Record converts a single row to a string slice aligned with Columns.
func Record(row *domain.ResultRow) []string {
	return []string{
		row.CorrelationID,
		row.Author,
		row.Institution,
		row.Date,
		formatScore(row.HawkishDovishScore),
		formatScore(row.TopicInflation),
		formatScore(row.TopicGrowth),
		formatScore(row.TopicFinancialStability),
		formatScore(row.TopicLaborMarket),
		formatScore(row.TopicInternational),
		formatScore(row.Uncertainty),
		formatScore(row.ForwardGuidanceStrength),
		row.MarketStocks,
		row.MarketBonds,
		row.MarketCurrency,
		row.MarketReasoning,
		JoinKeySentences(row.KeySentences),
		row.Summary,
		row.ChunkFile,
	}
}

// JoinKeySentences flattens key sentences into one cell value.
func JoinKeySentences(sentences []string) string {
	return strings.Join(sentences, KeySentenceSeparator)
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
