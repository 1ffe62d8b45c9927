package logger

import (
	"encoding/json"
	"io"
	"sort"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ReadJSONLinesLog parses a newline delimited JSON log.
func ReadJSONLinesLog(r io.Reader, handler func(event *DirectiveEvent)) error {
	decoder := json.NewDecoder(r)
	for decoder.More() {
		var rawEntry json.RawMessage
		if err := decoder.Decode(&rawEntry); err != nil {
			return err
		}

		var entry structpb.Struct
		if err := protojson.Unmarshal(rawEntry, &entry); err != nil {
			return err
		}

		handler(eventFromStruct(&entry))
	}
	return nil
}

// NewReport creates an empty Report.
func NewReport() *Report {
	return &Report{
		Failures: NewPathCounter("outcome", "payload"),
	}
}

// Report holds statistics about the logged events.
type Report struct {
	LogEntries int `json:"log_entries"`
	Inline     int `json:"inline"`
	Block      int `json:"block"`

	Outcomes     StrCounter   `json:"outcomes"`
	CommandNames StrCounter   `json:"command_names"`
	Failures     *PathCounter `json:"failures"`

	DurationMicros int64 `json:"total_duration_micros"`

	// Slowest holds the payload of the longest running directive.
	Slowest       string `json:"slowest,omitempty"`
	SlowestMicros int64  `json:"slowest_micros,omitempty"`
}

// Update adds the event to the report.
func (r *Report) Update(event *DirectiveEvent) {
	r.LogEntries++

	if event.Inline {
		r.Inline++
	} else {
		r.Block++
	}

	r.Outcomes.Increment(string(event.Outcome))
	if fields := strings.Fields(event.Command); len(fields) > 0 {
		r.CommandNames.Increment(fields[0])
	}

	if event.Outcome != OutcomeSuccess {
		r.Failures.Increment(string(event.Outcome), event.Payload)
	}

	micros := event.Duration.Microseconds()
	r.DurationMicros += micros
	if micros > r.SlowestMicros || r.Slowest == "" {
		r.Slowest = event.Payload
		r.SlowestMicros = micros
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

// Get returns the count for the key.
func (s *StrCounter) Get(key string) int {
	return s.internal[key]
}

// MarshalJSON implemnts custom JSON marshaler.
func (s StrCounter) MarshalJSON() ([]byte, error) {
	if s.internal == nil {
		return []byte("{}"), nil
	}
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

// Get returns the count for the key.
func (ctr *PathCounter) Get(key ...string) int {
	return ctr.internal[toKey(key...)]
}

// MarshalJSON implemnts custom JSON marshaler.
func (ctr *PathCounter) MarshalJSON() ([]byte, error) {
	type Count struct {
		Count  int               `json:"count"`
		Fields map[string]string `json:"event"`
		Path   string            `json:"-"`
	}

	out := []Count{}
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
