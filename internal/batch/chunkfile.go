package batch

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"cbsent/internal/domain"
	"cbsent/internal/fsutil"
)

var chunkFilePattern = regexp.MustCompile(`^chunk(\d+)_input\.jsonl$`)

// ChunkFileName returns the request file name of chunk n.
func ChunkFileName(n int) string {
	return fmt.Sprintf("chunk%02d_input.jsonl", n)
}

// ResultFileName returns the local results file name of chunk n.
func ResultFileName(n int) string {
	return fmt.Sprintf("chunk%02d_results.jsonl", n)
}

// ErrorFileName returns the local file name of chunk n's failed requests.
func ErrorFileName(n int) string {
	return fmt.Sprintf("chunk%02d_errors.jsonl", n)
}

// ParseChunkNumber extracts n from a chunk request file name.
func ParseChunkNumber(name string) (int, bool) {
	m := chunkFilePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// ChunkFile is a chunk request file found on disk.
type ChunkFile struct {
	Number int
	Name   string
	Path   string
}

// ListChunkFiles returns the chunk request files in dir ordered by chunk
// number. A missing directory yields no files.
func ListChunkFiles(dir string) ([]ChunkFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing chunk files: %w", err)
	}

	var files []ChunkFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n, ok := ParseChunkNumber(e.Name())
		if !ok {
			continue
		}
		files = append(files, ChunkFile{Number: n, Name: e.Name(), Path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Number < files[j].Number })
	return files, nil
}

// EncodeChunk serializes records as newline-delimited JSON.
func EncodeChunk(records []domain.RequestRecord) ([]byte, error) {
	var buf bytes.Buffer
	for i := range records {
		line, err := MarshalRecord(&records[i])
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// WriteChunkFile writes a chunk's request file into dir. Files are write-once:
// an identical existing file is kept, a different one is a conflict.
func WriteChunkFile(dir string, chunk *domain.Chunk) (bool, error) {
	data, err := EncodeChunk(chunk.Records)
	if err != nil {
		return false, err
	}
	written, err := fsutil.WriteFileOnce(filepath.Join(dir, chunk.FileName), data, 0o644)
	if errors.Is(err, fsutil.ErrContentMismatch) {
		return false, fmt.Errorf("%s: %w", chunk.FileName, domain.ErrChunkFileConflict)
	}
	return written, err
}

// ReadChunkFile parses a chunk request file.
func ReadChunkFile(path string) ([]domain.RequestRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), domain.ErrChunkFileMissing)
		}
		return nil, fmt.Errorf("opening chunk file: %w", err)
	}
	defer f.Close()

	var records []domain.RequestRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec domain.RequestRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", filepath.Base(path), line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading chunk file: %w", err)
	}
	return records, nil
}

// BuildManifest lists the document metadata of every planned chunk in order.
func BuildManifest(docs []domain.Document, chunks []domain.Chunk) []domain.ManifestEntry {
	byID := make(map[string]*domain.Document, len(docs))
	for i := range docs {
		if _, dup := byID[docs[i].ID]; !dup {
			byID[docs[i].ID] = &docs[i]
		}
	}
	var entries []domain.ManifestEntry
	for _, c := range chunks {
		for _, rec := range c.Records {
			entry := domain.ManifestEntry{CorrelationID: rec.CustomID, ChunkFile: c.FileName}
			if doc, ok := byID[rec.CustomID]; ok {
				entry.Author = doc.Author
				entry.Institution = doc.Institution
				entry.Date = doc.Date
			}
			entries = append(entries, entry)
		}
	}
	return entries
}

// WriteManifest writes the document manifest once, like chunk files.
func WriteManifest(path string, entries []domain.ManifestEntry) (bool, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range entries {
		if err := enc.Encode(&entries[i]); err != nil {
			return false, fmt.Errorf("encoding manifest entry: %w", err)
		}
	}
	written, err := fsutil.WriteFileOnce(path, buf.Bytes(), 0o644)
	if errors.Is(err, fsutil.ErrContentMismatch) {
		return false, fmt.Errorf("manifest: %w", domain.ErrChunkFileConflict)
	}
	return written, err
}

// ReadManifest parses the document manifest.
func ReadManifest(path string) ([]domain.ManifestEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var entries []domain.ManifestEntry
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var e domain.ManifestEntry
		if err := dec.Decode(&e); err != nil {
			return nil, fmt.Errorf("decoding manifest: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// WriteChunks writes every chunk's request file into dir and returns how many
// files were newly written.
func WriteChunks(dir string, chunks []domain.Chunk) (int, error) {
	written := 0
	for i := range chunks {
		ok, err := WriteChunkFile(dir, &chunks[i])
		if err != nil {
			return written, err
		}
		if ok {
			written++
		}
	}
	return written, nil
}
