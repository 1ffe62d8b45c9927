package logger

import (
	"fmt"
	"io"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Outcome classifies how a directive was resolved.
type Outcome string

const (
	// OutcomeSuccess means the command output was substituted.
	OutcomeSuccess Outcome = "success"
	// OutcomeInvalidDirective means the cmdrun flags couldn't be parsed.
	OutcomeInvalidDirective Outcome = "invalid_directive"
	// OutcomeExitCodeMismatch means the command exited with an unexpected code.
	OutcomeExitCodeMismatch Outcome = "exit_code_mismatch"
	// OutcomeTerminated means the command didn't exit normally.
	OutcomeTerminated Outcome = "terminated"
	// OutcomeSpawnError means the shell couldn't be started.
	OutcomeSpawnError Outcome = "spawn_error"
)

// DirectiveEvent describes a single directive execution.
type DirectiveEvent struct {
	TimestampMicros int64
	// Dir is the working directory the command ran in.
	Dir     string
	Payload string
	Command string
	Inline  bool
	Outcome Outcome
	// ExpectedExitCode and ExitCode are nil when not applicable.
	ExpectedExitCode *int
	ExitCode         *int
	Duration         time.Duration
	Error            string
}

// LogRecorder is a callback that stores events in an external datastore.
type LogRecorder func(event *DirectiveEvent) error

// Logger captures directive events so the preprocessor's behavior can be
// audited after a build.
type Logger struct {
	Record LogRecorder

	// Now is the time source for event timestamps.
	Now func() time.Time
}

// NewJsonLinesLogRecorder creates a Logger that exports logs in newline
// delimited JSON object format.
func NewJsonLinesLogRecorder(w io.Writer) *Logger {
	var mu sync.Mutex

	return &Logger{
		Record: func(event *DirectiveEvent) error {
			entry, err := protojson.Marshal(event.toStruct())
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			_, err = fmt.Fprintln(w, string(entry))
			return err
		},
	}
}

// NewNopLogger creates a Logger that discards all events.
func NewNopLogger() *Logger {
	return &Logger{
		Record: func(*DirectiveEvent) error {
			return nil
		},
	}
}

// RecordDirective stamps the event with the current time and records it.
func (l *Logger) RecordDirective(event *DirectiveEvent) error {
	if event.TimestampMicros == 0 {
		now := time.Now
		if l.Now != nil {
			now = l.Now
		}
		event.TimestampMicros = now().UnixMicro()
	}

	return l.Record(event)
}

const (
	keyTimestamp    = "timestamp_micros"
	keyDir          = "dir"
	keyPayload      = "payload"
	keyCommand      = "command"
	keyInline       = "inline"
	keyOutcome      = "outcome"
	keyExpectedCode = "expected_exit_code"
	keyExitCode     = "exit_code"
	keyDuration     = "duration_micros"
	keyError        = "error"
)

func (e *DirectiveEvent) toStruct() *structpb.Struct {
	fields := map[string]*structpb.Value{
		keyTimestamp: structpb.NewNumberValue(float64(e.TimestampMicros)),
		keyPayload:   structpb.NewStringValue(e.Payload),
		keyCommand:   structpb.NewStringValue(e.Command),
		keyInline:    structpb.NewBoolValue(e.Inline),
		keyOutcome:   structpb.NewStringValue(string(e.Outcome)),
		keyDuration:  structpb.NewNumberValue(float64(e.Duration.Microseconds())),
	}

	if e.Dir != "" {
		fields[keyDir] = structpb.NewStringValue(e.Dir)
	}
	if e.ExpectedExitCode != nil {
		fields[keyExpectedCode] = structpb.NewNumberValue(float64(*e.ExpectedExitCode))
	}
	if e.ExitCode != nil {
		fields[keyExitCode] = structpb.NewNumberValue(float64(*e.ExitCode))
	}
	if e.Error != "" {
		fields[keyError] = structpb.NewStringValue(e.Error)
	}

	return &structpb.Struct{Fields: fields}
}

func eventFromStruct(s *structpb.Struct) *DirectiveEvent {
	fields := s.GetFields()

	optionalInt := func(key string) *int {
		v, ok := fields[key]
		if !ok {
			return nil
		}
		out := int(v.GetNumberValue())
		return &out
	}

	return &DirectiveEvent{
		TimestampMicros:  int64(fields[keyTimestamp].GetNumberValue()),
		Dir:              fields[keyDir].GetStringValue(),
		Payload:          fields[keyPayload].GetStringValue(),
		Command:          fields[keyCommand].GetStringValue(),
		Inline:           fields[keyInline].GetBoolValue(),
		Outcome:          Outcome(fields[keyOutcome].GetStringValue()),
		ExpectedExitCode: optionalInt(keyExpectedCode),
		ExitCode:         optionalInt(keyExitCode),
		Duration:         time.Duration(fields[keyDuration].GetNumberValue()) * time.Microsecond,
		Error:            fields[keyError].GetStringValue(),
	}
}
