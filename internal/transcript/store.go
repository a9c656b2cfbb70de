// Package transcript persists conversation history under ~/.gptcli so
// chats can be continued across invocations.
package transcript

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Record is one persisted conversation message.
type Record struct {
	// Role is one of system, user, or assistant.
	Role string `json:"role"`
	// Content is the message text.
	Content string `json:"content"`
	// Time is when the message was recorded.
	Time time.Time `json:"time"`
}

// Store manages transcript persistence under ~/.gptcli.
type Store struct {
	// BaseDir is the root for all persisted data.
	BaseDir string
}

// NewStore constructs a Store using the default base directory.
func NewStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home dir: %w", err)
	}
	return &Store{BaseDir: filepath.Join(home, ".gptcli")}, nil
}

// ProjectHash returns a stable hash for a workspace path, used to scope
// the "continue last chat" pointer per directory.
func ProjectHash(path string) string {
	clean := filepath.Clean(path)
	sum := sha256.Sum256([]byte(clean))
	return hex.EncodeToString(sum[:8])
}

// TranscriptPath returns the JSONL path for a transcript.
func (s *Store) TranscriptPath(transcriptID string) string {
	return filepath.Join(s.BaseDir, "transcripts", transcriptID+".jsonl")
}

// Append writes one record to the transcript's JSONL file.
func (s *Store) Append(transcriptID string, record Record) error {
	if transcriptID == "" {
		return errors.New("transcript id required")
	}
	path := s.TranscriptPath(transcriptID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create transcript dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open transcript file: %w", err)
	}
	defer file.Close()

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal transcript record: %w", err)
	}

	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write transcript record: %w", err)
	}

	return nil
}

// Load reads all records from a transcript file in arrival order.
// Malformed lines are skipped so a partially written file still loads.
func (s *Store) Load(transcriptID string) ([]Record, error) {
	path := s.TranscriptPath(transcriptID)
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var records []Record
	scanner := bufio.NewScanner(file)
	// Long assistant messages exceed the default scanner buffer.
	const maxRecordSize = 10 * 1024 * 1024
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record Record
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			continue
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read transcript file: %w", err)
	}
	return records, nil
}

// SaveLastTranscript stores the last transcript id for a project hash.
func (s *Store) SaveLastTranscript(projectHash string, transcriptID string) error {
	path := filepath.Join(s.BaseDir, "projects", projectHash, "last_transcript")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create project dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(transcriptID), 0o600); err != nil {
		return fmt.Errorf("write last transcript: %w", err)
	}
	return nil
}

// LoadLastTranscript returns the last transcript id for a project hash.
func (s *Store) LoadLastTranscript(projectHash string) (string, error) {
	path := filepath.Join(s.BaseDir, "projects", projectHash, "last_transcript")
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

// List returns recent transcript ids sorted by modification time desc.
func (s *Store) List(limit int) ([]string, error) {
	dir := filepath.Join(s.BaseDir, "transcripts")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	type entry struct {
		Name string
		Time time.Time
	}

	var list []entry
	for _, item := range entries {
		if item.IsDir() {
			continue
		}
		info, err := item.Info()
		if err != nil {
			continue
		}
		name := strings.TrimSuffix(item.Name(), filepath.Ext(item.Name()))
		list = append(list, entry{Name: name, Time: info.ModTime()})
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].Time.After(list[j].Time)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	result := make([]string, 0, len(list))
	for _, item := range list {
		result = append(result, item.Name)
	}
	return result, nil
}
