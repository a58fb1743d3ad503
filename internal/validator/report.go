package validator

import (
	"math"
	"sort"

	"cbsent/internal/domain"
)

// InvalidRecord lists why one document has no merged row.
type InvalidRecord struct {
	CorrelationID string  `json:"correlation_id"`
	ChunkFile     string  `json:"chunk_file,omitempty"`
	Issues        []Issue `json:"issues"`
}

// Stats summarizes one numeric column.
type Stats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Distribution summarizes the scores of the valid rows.
type Distribution struct {
	HawkishDovish   Stats          `json:"hawkish_dovish_score"`
	Uncertainty     Stats          `json:"uncertainty"`
	ForwardGuidance Stats          `json:"forward_guidance_strength"`
	Stance          map[string]int `json:"stance"`
}

// Report is the validation outcome of a merge.
type Report struct {
	TotalDocuments int             `json:"total_documents"`
	Valid          int             `json:"valid"`
	Invalid        int             `json:"invalid"`
	ValidationRate float64         `json:"validation_rate"`
	ReasonCounts   map[string]int  `json:"reason_counts"`
	InvalidRecords []InvalidRecord `json:"invalid_records"`
	Unmatched      []Issue         `json:"unmatched,omitempty"`
	Distribution   Distribution    `json:"distribution"`
}

// ReportBuilder accumulates per-document outcomes.
type ReportBuilder struct {
	valid     []domain.ResultRow
	invalid   []InvalidRecord
	unmatched []Issue
}

// NewReportBuilder creates an empty builder.
func NewReportBuilder() *ReportBuilder {
	return &ReportBuilder{}
}

// AddValid records a merged row.
func (b *ReportBuilder) AddValid(row domain.ResultRow) {
	b.valid = append(b.valid, row)
}

// AddInvalid records a document rejected for the given issues.
func (b *ReportBuilder) AddInvalid(correlationID, chunkFile string, issues []Issue) {
	b.invalid = append(b.invalid, InvalidRecord{CorrelationID: correlationID, ChunkFile: chunkFile, Issues: issues})
}

// AddUnmatched records output that could not be tied to any document.
func (b *ReportBuilder) AddUnmatched(issues ...Issue) {
	b.unmatched = append(b.unmatched, issues...)
}

// Build produces the report.
func (b *ReportBuilder) Build() *Report {
	r := &Report{
		Valid:          len(b.valid),
		Invalid:        len(b.invalid),
		TotalDocuments: len(b.valid) + len(b.invalid),
		ReasonCounts:   make(map[string]int),
		InvalidRecords: b.invalid,
		Unmatched:      b.unmatched,
		Distribution:   Summarize(b.valid),
	}
	if r.InvalidRecords == nil {
		r.InvalidRecords = []InvalidRecord{}
	}
	if r.TotalDocuments > 0 {
		r.ValidationRate = round4(float64(r.Valid) / float64(r.TotalDocuments))
	}
	for _, rec := range b.invalid {
		for _, issue := range rec.Issues {
			r.ReasonCounts[issue.Reason]++
		}
	}
	for _, issue := range b.unmatched {
		r.ReasonCounts[issue.Reason]++
	}
	return r
}

// Stance buckets of the hawkish/dovish score.
const (
	StanceVeryDovish  = "very_dovish"
	StanceDovish      = "dovish"
	StanceNeutral     = "neutral"
	StanceHawkish     = "hawkish"
	StanceVeryHawkish = "very_hawkish"
)

// StanceOf buckets a hawkish/dovish score.
func StanceOf(score float64) string {
	switch {
	case score < -50:
		return StanceVeryDovish
	case score < -10:
		return StanceDovish
	case score <= 10:
		return StanceNeutral
	case score <= 50:
		return StanceHawkish
	default:
		return StanceVeryHawkish
	}
}

// Summarize computes score distributions over rows.
func Summarize(rows []domain.ResultRow) Distribution {
	d := Distribution{Stance: map[string]int{
		StanceVeryDovish: 0, StanceDovish: 0, StanceNeutral: 0, StanceHawkish: 0, StanceVeryHawkish: 0,
	}}
	hd := make([]float64, 0, len(rows))
	unc := make([]float64, 0, len(rows))
	fg := make([]float64, 0, len(rows))
	for i := range rows {
		hd = append(hd, rows[i].HawkishDovishScore)
		unc = append(unc, rows[i].Uncertainty)
		fg = append(fg, rows[i].ForwardGuidanceStrength)
		d.Stance[StanceOf(rows[i].HawkishDovishScore)]++
	}
	d.HawkishDovish = computeStats(hd)
	d.Uncertainty = computeStats(unc)
	d.ForwardGuidance = computeStats(fg)
	return d
}

// computeStats uses the sample standard deviation.
func computeStats(vals []float64) Stats {
	s := Stats{Count: len(vals)}
	if len(vals) == 0 {
		return s
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(len(sorted))

	var median float64
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		median = sorted[mid]
	}

	std := 0.0
	if len(sorted) > 1 {
		ss := 0.0
		for _, v := range sorted {
			ss += (v - mean) * (v - mean)
		}
		std = math.Sqrt(ss / float64(len(sorted)-1))
	}

	s.Mean = round4(mean)
	s.Median = round4(median)
	s.Std = round4(std)
	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	return s
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
