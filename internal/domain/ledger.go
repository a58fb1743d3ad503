package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// MetadataKey is the reserved ledger key holding run metadata.
const MetadataKey = "_metadata"

// Ledger is the durable record of every chunk's remote lifecycle, keyed by
// chunk request file name. It serializes as one JSON object whose keys are
// the chunk file names plus MetadataKey.
type Ledger struct {
	Metadata *RunMetadata
	Entries  map[string]*LedgerEntry
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{Entries: make(map[string]*LedgerEntry)}
}

// Entry returns the entry for a chunk file name.
func (l *Ledger) Entry(name string) (*LedgerEntry, bool) {
	e, ok := l.Entries[name]
	return e, ok
}

// Names returns the tracked chunk names ordered by chunk number.
func (l *Ledger) Names() []string {
	names := make([]string, 0, len(l.Entries))
	for name := range l.Entries {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := l.Entries[names[i]], l.Entries[names[j]]
		if a.ChunkNumber != b.ChunkNumber {
			return a.ChunkNumber < b.ChunkNumber
		}
		return names[i] < names[j]
	})
	return names
}

// MarshalJSON writes metadata and entries as a single flat object.
func (l *Ledger) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(l.Entries)+1)
	if l.Metadata != nil {
		out[MetadataKey] = l.Metadata
	}
	for name, e := range l.Entries {
		out[name] = e
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the flat object written by MarshalJSON.
func (l *Ledger) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	l.Metadata = nil
	l.Entries = make(map[string]*LedgerEntry, len(raw))
	for key, msg := range raw {
		if key == MetadataKey {
			var meta RunMetadata
			if err := json.Unmarshal(msg, &meta); err != nil {
				return fmt.Errorf("%s: %w", MetadataKey, err)
			}
			l.Metadata = &meta
			continue
		}
		if strings.HasPrefix(key, "_") {
			continue
		}
		var e LedgerEntry
		if err := json.Unmarshal(msg, &e); err != nil {
			return fmt.Errorf("entry %s: %w", key, err)
		}
		l.Entries[key] = &e
	}
	return nil
}

// RecordUpload stores the remote file ID of a freshly uploaded request file,
// creating an unsubmitted entry for chunks seen for the first time.
func (l *Ledger) RecordUpload(name string, chunkNumber, numRequests int, fileID string, now time.Time) {
	e, ok := l.Entries[name]
	if !ok {
		e = &LedgerEntry{ChunkNumber: chunkNumber, Status: ChunkStatusUnsubmitted}
		l.Entries[name] = e
	}
	e.NumRequests = numRequests
	e.InputFileID = fileID
	e.UpdatedAt = now
}

// PendingUpload returns the input file ID uploaded for the chunk but not yet
// used by any job, or "".
func (e *LedgerEntry) PendingUpload() string {
	if e.InputFileID == "" {
		return ""
	}
	for _, a := range e.History {
		if a.InputFileID == e.InputFileID {
			return ""
		}
	}
	return e.InputFileID
}

// ClearPendingUpload forgets an unused upload, for example one the remote
// service no longer knows.
func (l *Ledger) ClearPendingUpload(name string, now time.Time) {
	e, ok := l.Entries[name]
	if !ok || e.PendingUpload() == "" {
		return
	}
	e.InputFileID = ""
	e.UpdatedAt = now
}

// RecordSubmission records a new remote job for the chunk. A previous job is
// kept in the history and referenced by PreviousJobID.
func (l *Ledger) RecordSubmission(name, jobID string, now time.Time) error {
	e, ok := l.Entries[name]
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrChunkNotTracked)
	}
	if !CanTransition(e.Status, ChunkStatusSubmitted) || (e.Status == ChunkStatusSubmitted && e.JobID != "") {
		return fmt.Errorf("%s: cannot submit chunk in status %s", name, e.Status)
	}
	if e.JobID != "" {
		e.PreviousJobID = e.JobID
	}
	submitted := now
	e.JobID = jobID
	e.Status = ChunkStatusSubmitted
	e.SubmittedAt = &submitted
	e.UpdatedAt = now
	e.CompletedAt = nil
	e.OutputFileID = ""
	e.ErrorFileID = ""
	e.OutputFile = ""
	e.ErrorFile = ""
	e.Error = ""
	e.RequestCounts = RequestCounts{Total: int64(e.NumRequests)}
	e.History = append(e.History, JobAttempt{
		JobID:       jobID,
		InputFileID: e.InputFileID,
		Status:      ChunkStatusSubmitted,
		SubmittedAt: now,
	})
	return nil
}

// ApplySnapshot folds a remote status observation into the chunk's entry and
// reports whether anything changed. Snapshots of superseded jobs are ignored.
func (l *Ledger) ApplySnapshot(name string, snap *JobSnapshot, now time.Time) (bool, error) {
	e, ok := l.Entries[name]
	if !ok {
		return false, fmt.Errorf("%s: %w", name, ErrChunkNotTracked)
	}
	if snap.JobID != e.JobID {
		return false, nil
	}
	status, _ := ChunkStatusFromRemote(snap.Status)
	if !CanTransition(e.Status, status) {
		return false, fmt.Errorf("%s: invalid transition %s -> %s", name, e.Status, status)
	}

	detail := ""
	if status.IsFailure() {
		detail = "job " + string(status)
		if len(snap.Errors) > 0 {
			detail = strings.Join(snap.Errors, "; ")
		}
	}
	if status == e.Status && snap.RequestCounts == e.RequestCounts &&
		snap.OutputFileID == e.OutputFileID && snap.ErrorFileID == e.ErrorFileID && detail == e.Error {
		return false, nil
	}

	e.Status = status
	e.RequestCounts = snap.RequestCounts
	e.OutputFileID = snap.OutputFileID
	e.ErrorFileID = snap.ErrorFileID
	e.Error = detail
	e.UpdatedAt = now
	if status.IsTerminal() && e.CompletedAt == nil {
		ended := now
		e.CompletedAt = &ended
	}
	l.updateAttempt(e, status, detail, now)
	return true, nil
}

// MarkFailed moves a chunk to failed with an error detail.
func (l *Ledger) MarkFailed(name, detail string, now time.Time) error {
	e, ok := l.Entries[name]
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrChunkNotTracked)
	}
	if !CanTransition(e.Status, ChunkStatusFailed) {
		return fmt.Errorf("%s: invalid transition %s -> %s", name, e.Status, ChunkStatusFailed)
	}
	e.Status = ChunkStatusFailed
	e.Error = detail
	e.UpdatedAt = now
	ended := now
	e.CompletedAt = &ended
	l.updateAttempt(e, ChunkStatusFailed, detail, now)
	return nil
}

// RecordError stores an error detail without changing the chunk's status.
func (l *Ledger) RecordError(name, detail string, now time.Time) bool {
	e, ok := l.Entries[name]
	if !ok || e.Error == detail {
		return false
	}
	e.Error = detail
	e.UpdatedAt = now
	return true
}

// RecordDownload stores the local path of a completed chunk's results.
func (l *Ledger) RecordDownload(name, path string, now time.Time) bool {
	e, ok := l.Entries[name]
	if !ok || e.OutputFile == path {
		return false
	}
	e.OutputFile = path
	e.UpdatedAt = now
	return true
}

// RecordErrorDownload stores the local path of a completed chunk's error file.
func (l *Ledger) RecordErrorDownload(name, path string, now time.Time) bool {
	e, ok := l.Entries[name]
	if !ok || e.ErrorFile == path {
		return false
	}
	e.ErrorFile = path
	e.UpdatedAt = now
	return true
}

func (l *Ledger) updateAttempt(e *LedgerEntry, status ChunkStatus, detail string, now time.Time) {
	if len(e.History) == 0 {
		return
	}
	a := &e.History[len(e.History)-1]
	if a.JobID != e.JobID {
		return
	}
	a.Status = status
	a.Error = detail
	if status.IsTerminal() && a.EndedAt == nil {
		ended := now
		a.EndedAt = &ended
	}
}

// Buckets groups chunk names by lifecycle outcome.
type Buckets struct {
	Completed   []string `json:"completed"`
	Failed      []string `json:"failed"`
	InProgress  []string `json:"in_progress"`
	Unsubmitted []string `json:"unsubmitted"`
}

// AllCompleted reports whether every classified chunk completed.
func (b Buckets) AllCompleted() bool {
	return len(b.Completed) > 0 && len(b.Failed) == 0 && len(b.InProgress) == 0 && len(b.Unsubmitted) == 0
}

// Classify sorts the named chunks into buckets, in the given order. Names
// without an entry are unsubmitted.
func (l *Ledger) Classify(names []string) Buckets {
	var b Buckets
	for _, name := range names {
		e, ok := l.Entries[name]
		if !ok {
			b.Unsubmitted = append(b.Unsubmitted, name)
			continue
		}
		switch e.Status {
		case ChunkStatusCompleted:
			b.Completed = append(b.Completed, name)
		case ChunkStatusFailed, ChunkStatusExpired, ChunkStatusCancelled:
			b.Failed = append(b.Failed, name)
		case ChunkStatusSubmitted, ChunkStatusInProgress:
			b.InProgress = append(b.InProgress, name)
		case ChunkStatusUnsubmitted:
			b.Unsubmitted = append(b.Unsubmitted, name)
		default:
			b.InProgress = append(b.InProgress, name)
		}
	}
	return b
}
