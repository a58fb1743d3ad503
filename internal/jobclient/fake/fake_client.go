// Package fake provides a deterministic in-memory job client. It backs dry
// runs (job_client.provider=fake) and the orchestrator tests.
package fake

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"cbsent/internal/config"
	"cbsent/internal/domain"
	"cbsent/internal/port"
)

// Script controls the simulated remote behavior.
type Script struct {
	// FailFirst makes the first N jobs created for a request file (by base
	// name) end as failed.
	FailFirst map[string]int
	// PollsToFinish is how many status queries report in_progress before a
	// job reaches its terminal state.
	PollsToFinish int
	// QuotaAfterJobs makes CreateJob return a QuotaError once this many jobs
	// exist. 0 disables the limit.
	QuotaAfterJobs int
	// TransportErrors makes the next N status queries fail with a TransportError.
	TransportErrors int
	// EndStatus overrides the terminal status of the jobs FailFirst fails
	// (expired or cancelled). Unset files end as failed.
	EndStatus map[string]domain.RemoteStatus
	// FailedRequests makes the first N requests of a request file fail inside
	// an otherwise completed job. Their lines go to the job's error file; a
	// job whose requests all fail has no output file.
	FailedRequests map[string]int
}

// Responder produces the model output content for a correlation ID.
type Responder func(customID string) string

type uploadedFile struct {
	name    string
	content []byte
}

type job struct {
	id       string
	fileID   string
	fileName string
	attempt  int
	polls    int
	status   domain.RemoteStatus
	outputID string
	errorID  string
}

// Client is a scripted port.JobClient. Remote state lives in memory, so a
// Client shared across orchestrator instances behaves like a remote service
// that outlives a local crash.
type Client struct {
	mu        sync.Mutex
	script    Script
	responder Responder
	files     map[string]*uploadedFile
	jobs      map[string]*job
	attempts  map[string]int
	seq       int

	Uploads     int
	Creates     int
	StatusCalls int
	Downloads   int
}

// NewClient creates a fake client. A nil responder uses DefaultResponse.
func NewClient(script Script, responder Responder) *Client {
	if responder == nil {
		responder = DefaultResponse
	}
	return &Client{
		script:    script,
		responder: responder,
		files:     make(map[string]*uploadedFile),
		jobs:      make(map[string]*job),
		attempts:  make(map[string]int),
	}
}

// NewJobClient adapts NewClient to jobclient.ProviderFactory.
func NewJobClient(_ *config.OpenAIConfig, logger *zap.Logger) (port.JobClient, error) {
	logger.Warn("using fake job client, no remote calls will be made")
	return NewClient(Script{}, nil), nil
}

func (c *Client) nextID(prefix string) string {
	c.seq++
	return fmt.Sprintf("%s_%04d", prefix, c.seq)
}

func (c *Client) UploadRequests(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%s: %w", path, domain.ErrChunkFileMissing)
		}
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.Uploads++
	id := c.nextID("file")
	c.files[id] = &uploadedFile{name: filepath.Base(path), content: content}
	return id, nil
}

func (c *Client) CreateJob(ctx context.Context, inputFileID string, _ map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.files[inputFileID]
	if !ok {
		return "", &domain.NotFoundError{Kind: "file", ID: inputFileID, Err: errors.New("no such file")}
	}
	if c.script.QuotaAfterJobs > 0 && len(c.jobs) >= c.script.QuotaAfterJobs {
		return "", domain.NewQuotaError("create job", errors.New("enqueued token limit reached"), 0)
	}

	c.Creates++
	c.attempts[f.name]++
	j := &job{
		id:       c.nextID("batch"),
		fileID:   inputFileID,
		fileName: f.name,
		attempt:  c.attempts[f.name],
		status:   domain.RemoteStatusValidating,
	}
	c.jobs[j.id] = j
	return j.id, nil
}

func (c *Client) GetStatus(ctx context.Context, jobID string) (*domain.JobSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StatusCalls++

	if c.script.TransportErrors > 0 {
		c.script.TransportErrors--
		return nil, domain.NewTransportError("get job status", errors.New("connection reset by peer"))
	}

	j, ok := c.jobs[jobID]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "job", ID: jobID, Err: errors.New("no such job")}
	}
	c.advance(j)

	total := int64(countLines(c.files[j.fileID].content))
	snap := &domain.JobSnapshot{JobID: j.id, Status: j.status, RequestCounts: domain.RequestCounts{Total: total}}
	switch j.status {
	case domain.RemoteStatusCompleted:
		failed := int64(c.script.FailedRequests[j.fileName])
		if failed > total {
			failed = total
		}
		snap.RequestCounts.Completed = total - failed
		snap.RequestCounts.Failed = failed
		snap.OutputFileID = j.outputID
		snap.ErrorFileID = j.errorID
	case domain.RemoteStatusFailed, domain.RemoteStatusExpired, domain.RemoteStatusCancelled:
		snap.Errors = []string{"simulated_failure: job " + string(j.status)}
	}
	return snap, nil
}

// advance moves a job one step along its scripted path.
func (c *Client) advance(j *job) {
	if status, _ := domain.ChunkStatusFromRemote(j.status); status.IsTerminal() {
		return
	}
	j.polls++
	if j.polls <= c.script.PollsToFinish {
		j.status = domain.RemoteStatusInProgress
		return
	}
	if j.attempt <= c.script.FailFirst[j.fileName] {
		j.status = domain.RemoteStatusFailed
		if end, ok := c.script.EndStatus[j.fileName]; ok {
			j.status = end
		}
		return
	}
	output, errs := c.buildOutput(c.files[j.fileID].content, j.id, c.script.FailedRequests[j.fileName])
	if len(output) > 0 {
		j.outputID = c.nextID("file")
		c.files[j.outputID] = &uploadedFile{name: j.id + "_output.jsonl", content: output}
	}
	if len(errs) > 0 {
		j.errorID = c.nextID("file")
		c.files[j.errorID] = &uploadedFile{name: j.id + "_error.jsonl", content: errs}
	}
	j.status = domain.RemoteStatusCompleted
}

func (c *Client) Download(ctx context.Context, fileID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Downloads++

	f, ok := c.files[fileID]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "file", ID: fileID, Err: errors.New("no such file")}
	}
	return append([]byte(nil), f.content...), nil
}

type outputLine struct {
	ID       string          `json:"id"`
	CustomID string          `json:"custom_id"`
	Response *outputResponse `json:"response"`
	Error    interface{}     `json:"error"`
}

func requestFailedLine(jobID, customID string, i int) outputLine {
	return outputLine{
		ID:       fmt.Sprintf("%s_req_%d", jobID, i),
		CustomID: customID,
		Response: &outputResponse{
			StatusCode: 400,
			RequestID:  fmt.Sprintf("%s_%d", jobID, i),
			Body: map[string]interface{}{
				"error": map[string]interface{}{
					"message": "simulated request failure",
					"type":    "invalid_request_error",
				},
			},
		},
	}
}

type outputResponse struct {
	StatusCode int                    `json:"status_code"`
	RequestID  string                 `json:"request_id"`
	Body       map[string]interface{} `json:"body"`
}

// buildOutput answers every request line, in reverse order like a remote
// service that does not preserve input order. The first failN requests are
// answered in the error file instead.
func (c *Client) buildOutput(input []byte, jobID string, failN int) ([]byte, []byte) {
	var ids []string
	scanner := bufio.NewScanner(bytes.NewReader(input))
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		var rec struct {
			CustomID string `json:"custom_id"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &rec); err == nil && rec.CustomID != "" {
			ids = append(ids, rec.CustomID)
		}
	}

	if failN > len(ids) {
		failN = len(ids)
	}
	var buf, errBuf bytes.Buffer
	for i := 0; i < failN; i++ {
		b, _ := json.Marshal(requestFailedLine(jobID, ids[i], i))
		errBuf.Write(b)
		errBuf.WriteByte('\n')
	}
	for i := len(ids) - 1; i >= failN; i-- {
		line := outputLine{
			ID:       fmt.Sprintf("%s_req_%d", jobID, i),
			CustomID: ids[i],
			Response: &outputResponse{
				StatusCode: 200,
				RequestID:  fmt.Sprintf("%s_%d", jobID, i),
				Body: map[string]interface{}{
					"choices": []interface{}{
						map[string]interface{}{
							"index":   0,
							"message": map[string]interface{}{"role": "assistant", "content": c.responder(ids[i])},
						},
					},
				},
			},
		}
		b, _ := json.Marshal(line)
		buf.Write(b)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), errBuf.Bytes()
}

func countLines(b []byte) int {
	n := 0
	for _, line := range bytes.Split(b, []byte("\n")) {
		if len(bytes.TrimSpace(line)) > 0 {
			n++
		}
	}
	return n
}

// DefaultResponse returns a valid sentiment response derived from the
// correlation ID, so repeated runs produce identical output.
func DefaultResponse(customID string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(customID))
	v := int(h.Sum32() >> 1)
	directions := []string{"rise", "fall", "neutral"}

	resp := map[string]interface{}{
		"hawkish_dovish_score": v%201 - 100,
		"topics": map[string]interface{}{
			"inflation":           v % 101,
			"growth":              (v / 7) % 101,
			"financial_stability": (v / 11) % 101,
			"labor_market":        (v / 13) % 101,
			"international":       (v / 17) % 101,
		},
		"uncertainty":               (v / 19) % 101,
		"forward_guidance_strength": (v / 23) % 101,
		"key_sentences":             []string{"Policy will remain data dependent.", "Inflation is " + customID + "."},
		"market_impact": map[string]interface{}{
			"stocks":    directions[v%3],
			"bonds":     directions[(v/3)%3],
			"currency":  directions[(v/9)%3],
			"reasoning": "Simulated response.",
		},
		"summary": "Simulated summary for " + customID + ".",
	}
	b, _ := json.Marshal(resp)
	return string(b)
}
