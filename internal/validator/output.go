package validator

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"

	"cbsent/internal/domain"
)

type outputLine struct {
	CustomID string `json:"custom_id"`
	Response *struct {
		StatusCode int `json:"status_code"`
		Body       struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		} `json:"body"`
	} `json:"response"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseOutput reads a remote output file. Lines that are not valid JSON or
// carry no correlation ID are returned as issues instead of records.
func ParseOutput(data []byte) ([]domain.ResultRecord, []Issue) {
	var (
		records []domain.ResultRecord
		issues  []Issue
	)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var line outputLine
		if err := json.Unmarshal(raw, &line); err != nil {
			issues = append(issues, Issue{Reason: ReasonMalformedJSON, Message: fmt.Sprintf("output line %d: %v", lineNo, err)})
			continue
		}
		if line.CustomID == "" {
			issues = append(issues, Issue{Reason: ReasonUnknownCorrelation, Message: fmt.Sprintf("output line %d has no custom_id", lineNo)})
			continue
		}
		records = append(records, toRecord(&line))
	}
	if err := scanner.Err(); err != nil {
		issues = append(issues, Issue{Reason: ReasonMalformedJSON, Message: err.Error()})
	}
	return records, issues
}

func toRecord(line *outputLine) domain.ResultRecord {
	rec := domain.ResultRecord{CorrelationID: line.CustomID}
	if line.Error != nil {
		rec.Error = line.Error.Code + ": " + line.Error.Message
	}
	if line.Response == nil {
		if rec.Error == "" {
			rec.Error = "no response"
		}
		return rec
	}
	rec.StatusCode = line.Response.StatusCode
	if len(line.Response.Body.Choices) > 0 {
		rec.Content = line.Response.Body.Choices[0].Message.Content
	}
	return rec
}

// CheckRecord validates one result record, including its transport envelope.
func CheckRecord(rec *domain.ResultRecord) (*domain.SentimentResponse, []Issue) {
	if rec.Error != "" {
		return nil, []Issue{{Reason: ReasonRequestFailed, Message: rec.Error}}
	}
	if rec.StatusCode != 200 {
		return nil, []Issue{{Reason: ReasonRequestFailed, Message: fmt.Sprintf("status code %d", rec.StatusCode)}}
	}
	if rec.Content == "" {
		return nil, []Issue{{Reason: ReasonMalformedJSON, Message: "empty model output"}}
	}
	return ValidateSentiment(rec.Content)
}
