package snapshot

import (
	"encoding/json"
	"strings"

	"github.com/haierkeys/library-backup-service/pkg/code"
)

// ParseError reports restic output that does not carry a usable summary.
// ParseError restic 输出中没有可用的汇总行
type ParseError struct {
	Reason string
	Line   string
}

func (e *ParseError) Error() string {
	return "restic summary: " + e.Reason
}

// Unwrap lets errors.Is / errors.As see code.ErrorParse
func (e *ParseError) Unwrap() error {
	return code.ErrorParse.WithDetails(e.Reason)
}

// Summary is the typed final line of "restic backup --json".
// Summary restic backup --json 的最终汇总
type Summary struct {
	FilesNew            int64
	FilesChanged        int64
	FilesUnmodified     int64
	DataAdded           int64
	DataAddedPacked     int64
	TotalFilesProcessed int64
	TotalBytesProcessed int64
	TotalDuration       float64
	SnapshotID          string
	// CompressionRatio is DataAdded / DataAddedPacked, 1 when nothing was packed
	CompressionRatio float64
	// Defaulted names optional fields that were absent and took their default
	// Defaulted 记录缺失而使用默认值的可选字段
	Defaulted []string
}

type rawSummary struct {
	MessageType         string   `json:"message_type"`
	FilesNew            *int64   `json:"files_new"`
	FilesChanged        *int64   `json:"files_changed"`
	FilesUnmodified     *int64   `json:"files_unmodified"`
	DataAdded           *int64   `json:"data_added"`
	DataAddedPacked     *int64   `json:"data_added_packed"`
	TotalFilesProcessed *int64   `json:"total_files_processed"`
	TotalBytesProcessed *int64   `json:"total_bytes_processed"`
	TotalDuration       *float64 `json:"total_duration"`
	SnapshotID          *string  `json:"snapshot_id"`
}

// ParseSummary finds the last summary message in the JSON-lines output and decodes it.
// Required counters must be present; optional ones default and are listed in Defaulted.
// ParseSummary 解析 JSON 行输出中的最后一条汇总消息
func ParseSummary(stdout string) (*Summary, error) {
	lines := strings.Split(stdout, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") || !strings.Contains(line, `"summary"`) {
			continue
		}
		var raw rawSummary
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			return nil, &ParseError{Reason: "invalid json: " + err.Error(), Line: line}
		}
		if raw.MessageType != "summary" {
			continue
		}
		return raw.toSummary(line)
	}
	return nil, &ParseError{Reason: "no summary line in output"}
}

func (r *rawSummary) toSummary(line string) (*Summary, error) {
	required := []struct {
		name string
		v    *int64
	}{
		{"files_new", r.FilesNew},
		{"files_changed", r.FilesChanged},
		{"files_unmodified", r.FilesUnmodified},
		{"data_added", r.DataAdded},
		{"total_files_processed", r.TotalFilesProcessed},
		{"total_bytes_processed", r.TotalBytesProcessed},
	}
	for _, f := range required {
		if f.v == nil {
			return nil, &ParseError{Reason: "missing field " + f.name, Line: line}
		}
		if *f.v < 0 {
			return nil, &ParseError{Reason: "negative value for " + f.name, Line: line}
		}
	}

	s := &Summary{
		FilesNew:            *r.FilesNew,
		FilesChanged:        *r.FilesChanged,
		FilesUnmodified:     *r.FilesUnmodified,
		DataAdded:           *r.DataAdded,
		TotalFilesProcessed: *r.TotalFilesProcessed,
		TotalBytesProcessed: *r.TotalBytesProcessed,
	}
	if r.DataAddedPacked != nil {
		s.DataAddedPacked = *r.DataAddedPacked
	} else {
		s.DataAddedPacked = s.DataAdded
		s.Defaulted = append(s.Defaulted, "data_added_packed")
	}
	if r.TotalDuration != nil {
		s.TotalDuration = *r.TotalDuration
	} else {
		s.Defaulted = append(s.Defaulted, "total_duration")
	}
	if r.SnapshotID != nil {
		s.SnapshotID = *r.SnapshotID
	} else {
		s.Defaulted = append(s.Defaulted, "snapshot_id")
	}

	s.CompressionRatio = 1
	if s.DataAddedPacked > 0 {
		s.CompressionRatio = float64(s.DataAdded) / float64(s.DataAddedPacked)
	}
	return s, nil
}
