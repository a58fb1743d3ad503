package domain

import "time"

// Document is one input text to be scored by the remote model.
type Document struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	Author      string `json:"author"`
	Institution string `json:"institution"`
	Date        string `json:"date"`
}

// ChatMessage is one message of a chat completion request body.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat constrains the model output format.
type ResponseFormat struct {
	Type string `json:"type"`
}

// RequestBody is the chat completion payload sent for a single document.
type RequestBody struct {
	Model          string         `json:"model"`
	Messages       []ChatMessage  `json:"messages"`
	ResponseFormat ResponseFormat `json:"response_format"`
	Temperature    float64        `json:"temperature"`
}

// RequestRecord is one line of a chunk request file. CustomID carries the
// correlation ID used to join results back to their document.
type RequestRecord struct {
	CustomID string      `json:"custom_id"`
	Method   string      `json:"method"`
	URL      string      `json:"url"`
	Body     RequestBody `json:"body"`
}

// Chunk is an ordered group of request records submitted as one remote job.
type Chunk struct {
	Number          int
	FileName        string
	Records         []RequestRecord
	EstimatedTokens int
}

// ManifestEntry carries the document metadata needed to rebuild a merged row
// from a result, keyed by correlation ID.
type ManifestEntry struct {
	CorrelationID string `json:"correlation_id"`
	Author        string `json:"author"`
	Institution   string `json:"institution"`
	Date          string `json:"date"`
	ChunkFile     string `json:"chunk_file"`
}

// RequestCounts mirrors the per-job request tallies reported by the remote service.
type RequestCounts struct {
	Total     int64 `json:"total"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// JobAttempt records one remote job created for a chunk.
type JobAttempt struct {
	JobID       string      `json:"job_id"`
	InputFileID string      `json:"input_file_id"`
	Status      ChunkStatus `json:"status"`
	SubmittedAt time.Time   `json:"submitted_at"`
	EndedAt     *time.Time  `json:"ended_at,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// LedgerEntry is the durable record of a chunk's remote lifecycle.
type LedgerEntry struct {
	ChunkNumber   int           `json:"chunk_number"`
	JobID         string        `json:"job_id,omitempty"`
	InputFileID   string        `json:"input_file_id,omitempty"`
	OutputFileID  string        `json:"output_file_id,omitempty"`
	ErrorFileID   string        `json:"error_file_id,omitempty"`
	NumRequests   int           `json:"num_requests"`
	RequestCounts RequestCounts `json:"request_counts"`
	Status        ChunkStatus   `json:"status"`
	SubmittedAt   *time.Time    `json:"submitted_at,omitempty"`
	UpdatedAt     time.Time     `json:"updated_at"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
	OutputFile    string        `json:"output_file,omitempty"`
	ErrorFile     string        `json:"error_file,omitempty"`
	Error         string        `json:"error,omitempty"`
	PreviousJobID string        `json:"previous_job_id,omitempty"`
	History       []JobAttempt  `json:"history,omitempty"`
}

// Attempts returns how many remote jobs have been created for the chunk.
func (e *LedgerEntry) Attempts() int {
	return len(e.History)
}

// RunMetadata is the ledger's run-level record, stored under the "_metadata" key.
type RunMetadata struct {
	RunID                string     `json:"run_id"`
	TotalChunks          int        `json:"total_chunks"`
	TotalDocuments       int        `json:"total_documents"`
	TotalEstimatedTokens int        `json:"total_estimated_tokens"`
	StartedAt            time.Time  `json:"started_at"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	Status               RunStatus  `json:"status"`
}

// JobSnapshot is the remote view of a job at the time of a status query.
type JobSnapshot struct {
	JobID         string
	Status        RemoteStatus
	RequestCounts RequestCounts
	OutputFileID  string
	ErrorFileID   string
	Errors        []string
}

// Topics holds the per-topic emphasis scores of a sentiment response.
type Topics struct {
	Inflation          float64 `json:"inflation"`
	Growth             float64 `json:"growth"`
	FinancialStability float64 `json:"financial_stability"`
	LaborMarket        float64 `json:"labor_market"`
	International      float64 `json:"international"`
}

// MarketImpact holds the predicted market direction per asset class.
type MarketImpact struct {
	Stocks    MarketDirection `json:"stocks"`
	Bonds     MarketDirection `json:"bonds"`
	Currency  MarketDirection `json:"currency"`
	Reasoning string          `json:"reasoning"`
}

// SentimentResponse is a validated model response for one document.
type SentimentResponse struct {
	HawkishDovishScore      float64      `json:"hawkish_dovish_score"`
	Topics                  Topics       `json:"topics"`
	Uncertainty             float64      `json:"uncertainty"`
	ForwardGuidanceStrength float64      `json:"forward_guidance_strength"`
	KeySentences            []string     `json:"key_sentences"`
	MarketImpact            MarketImpact `json:"market_impact"`
	Summary                 string       `json:"summary"`
}

// ResultRecord is one parsed line of a remote output file.
type ResultRecord struct {
	CorrelationID string
	StatusCode    int
	Content       string
	Error         string
}

// ResultRow is one row of the merged output table.
type ResultRow struct {
	CorrelationID           string   `db:"correlation_id"`
	Author                  string   `db:"author"`
	Institution             string   `db:"institution"`
	Date                    string   `db:"speech_date"`
	HawkishDovishScore      float64  `db:"hawkish_dovish_score"`
	TopicInflation          float64  `db:"topic_inflation"`
	TopicGrowth             float64  `db:"topic_growth"`
	TopicFinancialStability float64  `db:"topic_financial_stability"`
	TopicLaborMarket        float64  `db:"topic_labor_market"`
	TopicInternational      float64  `db:"topic_international"`
	Uncertainty             float64  `db:"uncertainty"`
	ForwardGuidanceStrength float64  `db:"forward_guidance_strength"`
	MarketStocks            string   `db:"market_stocks"`
	MarketBonds             string   `db:"market_bonds"`
	MarketCurrency          string   `db:"market_currency"`
	MarketReasoning         string   `db:"market_reasoning"`
	KeySentences            []string `db:"-"`
	Summary                 string   `db:"summary"`
	ChunkFile               string   `db:"chunk_file"`
}

// NewResultRow flattens a validated response joined with its document metadata.
func NewResultRow(meta ManifestEntry, resp *SentimentResponse) ResultRow {
	return ResultRow{
		CorrelationID:           meta.CorrelationID,
		Author:                  meta.Author,
		Institution:             meta.Institution,
		Date:                    meta.Date,
		HawkishDovishScore:      resp.HawkishDovishScore,
		TopicInflation:          resp.Topics.Inflation,
		TopicGrowth:             resp.Topics.Growth,
		TopicFinancialStability: resp.Topics.FinancialStability,
		TopicLaborMarket:        resp.Topics.LaborMarket,
		TopicInternational:      resp.Topics.International,
		Uncertainty:             resp.Uncertainty,
		ForwardGuidanceStrength: resp.ForwardGuidanceStrength,
		MarketStocks:            string(resp.MarketImpact.Stocks),
		MarketBonds:             string(resp.MarketImpact.Bonds),
		MarketCurrency:          string(resp.MarketImpact.Currency),
		MarketReasoning:         resp.MarketImpact.Reasoning,
		KeySentences:            resp.KeySentences,
		Summary:                 resp.Summary,
		ChunkFile:               meta.ChunkFile,
	}
}
