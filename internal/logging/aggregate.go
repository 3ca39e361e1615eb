package logging

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"
)

// LogEntry is one parsed JSON log record.
type LogEntry struct {
	Timestamp time.Time      `json:"time"`
	Level     string         `json:"level"`
	Message   string         `json:"msg"`
	RunID     string         `json:"run_id,omitempty"`
	TaskID    string         `json:"task_id,omitempty"`
	Layer     *int           `json:"layer,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// LogFilter selects log entries. Zero fields match everything and set fields
// are combined with AND.
type LogFilter struct {
	// Level keeps entries at or above this level (DEBUG < INFO < WARN < ERROR).
	Level  string
	RunID  string
	TaskID string
	// Layer keeps entries of one layer when non-nil.
	Layer *int
	Since time.Time
	Until time.Time
	// Pattern keeps entries whose message or task id matches.
	Pattern *regexp.Regexp
}

var levelOrder = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// maxLogLine bounds a single log record.
const maxLogLine = 1024 * 1024

// LogFiles returns the active log file and its rotated backups, oldest first.
// Gzipped backups are included.
func LogFiles(path string) []string {
	var backups []string
	for i := 1; ; i++ {
		name := fmt.Sprintf("%s.%d", path, i)
		if fileExists(name) {
			backups = append(backups, name)
		} else if fileExists(name + ".gz") {
			backups = append(backups, name+".gz")
		} else {
			break
		}
	}

	files := make([]string, 0, len(backups)+1)
	for i := len(backups) - 1; i >= 0; i-- {
		files = append(files, backups[i])
	}
	if fileExists(path) {
		files = append(files, path)
	}
	return files
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// ReadLogs parses every JSON record of the log at path and its backups,
// sorted by timestamp. Lines that are not JSON objects are skipped.
func ReadLogs(path string) ([]LogEntry, error) {
	files := LogFiles(path)
	if len(files) == 0 {
		return nil, fmt.Errorf("no log file found at %s: %w", path, os.ErrNotExist)
	}

	var entries []LogEntry
	for _, name := range files {
		fileEntries, err := readLogFile(name)
		if err != nil {
			return nil, err
		}
		entries = append(entries, fileEntries...)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

func readLogFile(name string) ([]LogEntry, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var r io.Reader = file
	if strings.HasSuffix(name, ".gz") {
		zr, err := gzip.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("failed to open compressed log %s: %w", name, err)
		}
		defer func() { _ = zr.Close() }()
		r = zr
	}

	var entries []LogEntry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLogLine)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if entry, err := parseLogEntry(line); err == nil {
			entries = append(entries, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading log file %s: %w", name, err)
	}
	return entries, nil
}

func parseLogEntry(line string) (LogEntry, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return LogEntry{}, fmt.Errorf("invalid JSON: %w", err)
	}

	entry := LogEntry{Attrs: make(map[string]any)}
	for k, v := range raw {
		switch k {
		case "time":
			if s, ok := v.(string); ok {
				entry.Timestamp, _ = time.Parse(time.RFC3339Nano, s)
			}
		case "level":
			entry.Level, _ = v.(string)
		case "msg":
			entry.Message, _ = v.(string)
		case "run_id":
			entry.RunID, _ = v.(string)
		case "task_id":
			entry.TaskID, _ = v.(string)
		case "layer":
			if f, ok := v.(float64); ok {
				layer := int(f)
				entry.Layer = &layer
			}
		default:
			entry.Attrs[k] = v
		}
	}
	return entry, nil
}

// FilterLogs returns the entries matching filter.
func FilterLogs(entries []LogEntry, filter LogFilter) []LogEntry {
	var filtered []LogEntry
	for _, entry := range entries {
		if matchesFilter(entry, filter) {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

func matchesFilter(entry LogEntry, filter LogFilter) bool {
	if filter.Level != "" {
		want, wantOK := levelOrder[strings.ToUpper(filter.Level)]
		got, gotOK := levelOrder[entry.Level]
		if wantOK && gotOK && got < want {
			return false
		}
	}
	if filter.RunID != "" && entry.RunID != filter.RunID {
		return false
	}
	if filter.TaskID != "" && entry.TaskID != filter.TaskID {
		return false
	}
	if filter.Layer != nil && (entry.Layer == nil || *entry.Layer != *filter.Layer) {
		return false
	}
	if !filter.Since.IsZero() && entry.Timestamp.Before(filter.Since) {
		return false
	}
	if !filter.Until.IsZero() && entry.Timestamp.After(filter.Until) {
		return false
	}
	if filter.Pattern != nil && !filter.Pattern.MatchString(entry.Message) && !filter.Pattern.MatchString(entry.TaskID) {
		return false
	}
	return true
}

// LatestRunID returns the run id of the newest entry that has one.
func LatestRunID(entries []LogEntry) string {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].RunID != "" {
			return entries[i].RunID
		}
	}
	return ""
}

// WriteLogEntries writes entries to w as "text", "json" or "csv".
func WriteLogEntries(w io.Writer, entries []LogEntry, format string) error {
	switch strings.ToLower(format) {
	case "", "text":
		return writeText(w, entries)
	case "json":
		if entries == nil {
			entries = []LogEntry{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "csv":
		return writeCSV(w, entries)
	default:
		return fmt.Errorf("unsupported export format: %s (supported: text, json, csv)", format)
	}
}

// FormatEntry renders one entry as a single text line.
//
// Format: [TIMESTAMP] LEVEL - MESSAGE (context) {attrs}
func FormatEntry(entry LogEntry) string {
	parts := []string{
		fmt.Sprintf("[%s]", entry.Timestamp.Format("2006-01-02 15:04:05.000")),
		entry.Level,
		"-",
		entry.Message,
	}

	var context []string
	if entry.RunID != "" {
		context = append(context, "run="+entry.RunID)
	}
	if entry.Layer != nil {
		context = append(context, fmt.Sprintf("layer=%d", *entry.Layer))
	}
	if entry.TaskID != "" {
		context = append(context, "task="+entry.TaskID)
	}
	if len(context) > 0 {
		parts = append(parts, fmt.Sprintf("(%s)", strings.Join(context, ", ")))
	}
	if len(entry.Attrs) > 0 {
		attrs, _ := json.Marshal(entry.Attrs)
		parts = append(parts, string(attrs))
	}
	return strings.Join(parts, " ")
}

func writeText(w io.Writer, entries []LogEntry) error {
	for _, entry := range entries {
		if _, err := io.WriteString(w, FormatEntry(entry)+"\n"); err != nil {
			return fmt.Errorf("failed to write text entry: %w", err)
		}
	}
	return nil
}

func writeCSV(w io.Writer, entries []LogEntry) error {
	writer := csv.NewWriter(w)

	if err := writer.Write([]string{"timestamp", "level", "message", "run_id", "layer", "task_id", "attrs"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, entry := range entries {
		layer := ""
		if entry.Layer != nil {
			layer = fmt.Sprint(*entry.Layer)
		}
		attrs := ""
		if len(entry.Attrs) > 0 {
			if b, err := json.Marshal(entry.Attrs); err == nil {
				attrs = string(b)
			}
		}
		record := []string{
			entry.Timestamp.Format(time.RFC3339Nano),
			entry.Level,
			entry.Message,
			entry.RunID,
			layer,
			entry.TaskID,
			attrs,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
