package logger

import (
	"encoding/json"
	"io"
	"sort"
	"strconv"
)

// ReadJSONLinesLog parses a newline delimited JSON log.
func ReadJSONLinesLog(r io.Reader, handler func(le *LogEntry)) error {
	decoder := json.NewDecoder(r)
	for decoder.More() {
		var logEntry LogEntry
		if err := decoder.Decode(&logEntry); err != nil {
			return err
		}

		handler(&logEntry)
	}
	return nil
}

// Report holds statistics about the logged events.
type Report struct {
	LogEntries     int        `json:"log_entries"`
	Sessions       StrCounter `json:"sessions"`
	InvalidEntries StrCounter `json:"unknown_log_entries,omitempty"`

	Pipelines PipelineReport `json:"pipeline_report"`
	Failures  FailureReport  `json:"failure_report"`
	Jobs      JobReport      `json:"job_report"`
	Builtins  StrCounter     `json:"builtin_report"`
}

// Update adds an event to the report.
func (r *Report) Update(le *LogEntry) {
	r.LogEntries++
	if le.SessionID != "" {
		r.Sessions.Increment(le.SessionID)
	}

	switch le.Kind {
	case KindPipelineStart:
		r.Pipelines.update(le)
	case KindStageLaunch:
		if len(le.Argv) > 0 {
			r.Pipelines.Programs.Increment(le.Argv[0])
		}
	case KindLaunchFailed:
		r.Failures.update(le)
	case KindJobRegistered, KindJobDropped, KindJobCompleted:
		r.Jobs.update(le)
	case KindBuiltin:
		if len(le.Argv) > 0 {
			r.Builtins.Increment(le.Argv[0])
		}
	default:
		r.InvalidEntries.Increment(string(le.Kind))
	}
}

type PipelineReport struct {
	Count      int        `json:"count"`
	Background int        `json:"background"`
	Programs   StrCounter `json:"programs"`
}

func (r *PipelineReport) update(le *LogEntry) {
	r.Count++
	if le.Background {
		r.Background++
	}
}

type FailureReport struct {
	Count    int          `json:"count"`
	Programs *PathCounter `json:"programs"`
}

func (r *FailureReport) update(le *LogEntry) {
	r.Count++
	if r.Programs == nil {
		r.Programs = NewPathCounter("program", "error")
	}

	program := ""
	if len(le.Argv) > 0 {
		program = le.Argv[0]
	}
	r.Programs.Increment(program, le.Error)
}

type JobReport struct {
	Registered int        `json:"registered"`
	Dropped    int        `json:"dropped"`
	Completed  int        `json:"completed"`
	Labels     StrCounter `json:"labels"`
	ExitCodes  StrCounter `json:"exit_codes"`
}

func (r *JobReport) update(le *LogEntry) {
	switch le.Kind {
	case KindJobRegistered:
		r.Registered++
		r.Labels.Increment(le.Label)
	case KindJobDropped:
		r.Dropped++
	case KindJobCompleted:
		r.Completed++
		if le.ExitCode != nil {
			r.ExitCodes.Increment(strconv.Itoa(*le.ExitCode))
		}
	}
}

// StrCounter counts the number of strings seen.
type StrCounter struct {
	internal map[string]int
}

// Increment adds one to the given key.
func (s *StrCounter) Increment(toAdd string) {
	if s.internal == nil {
		s.internal = make(map[string]int)
	}

	s.internal[toAdd]++
}

// Get returns the count for the given key.
func (s *StrCounter) Get(key string) int {
	return s.internal[key]
}

// MarshalJSON implemnts custom JSON marshaler.
func (s StrCounter) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.internal)
}

func NewPathCounter(cols ...string) *PathCounter {
	return &PathCounter{
		cols:     cols,
		internal: make(map[string]int),
	}
}

// PathCounter counts the number of times a tuple of strings was seen.
type PathCounter struct {
	cols     []string
	internal map[string]int
}

// Increment adds one to the given key.
func (ctr *PathCounter) Increment(toAdd ...string) {
	if len(toAdd) != len(ctr.cols) {
		panic("wrong number of columns to add")
	}

	ctr.internal[toKey(toAdd...)]++
}

// MarshalJSON implemnts custom JSON marshaler.
func (ctr *PathCounter) MarshalJSON() ([]byte, error) {
	type Count struct {
		Count  int               `json:"count"`
		Fields map[string]string `json:"event"`
		Path   string            `json:"-"`
	}

	var out []Count
	for k, v := range ctr.internal {
		count := Count{
			Count:  v,
			Path:   k,
			Fields: make(map[string]string),
		}

		splitPath := fromKey(k)
		for colNum, colVal := range ctr.cols {
			count.Fields[colVal] = splitPath[colNum]
		}

		out = append(out, count)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Path < out[j].Path
		}
		return out[i].Count > out[j].Count
	})

	return json.Marshal(out)
}

func toKey(vals ...string) string {
	key, _ := json.Marshal(vals)
	return string(key)
}

func fromKey(key string) (out []string) {
	json.Unmarshal([]byte(key), &out)
	return
}
