package core

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/josephlewis42/cmdrun/core/logger"
)

const (
	// BlockPattern matches a directive that owns its trailing line break.
	BlockPattern = `<!--[ ]*cmdrun (.*?)-->\r?\n`
	// InlinePattern matches a directive anywhere in a line.
	InlinePattern = `<!--[ ]*cmdrun (.*?)-->`
)

// EventRecorder receives an event for every directive that is resolved.
type EventRecorder interface {
	RecordDirective(event *logger.DirectiveEvent) error
}

// Processor rewrites documents, replacing each cmdrun directive with the
// output of its command.
type Processor struct {
	platform *Platform
	timeout  time.Duration
	recorder EventRecorder

	blockPattern  *regexp.Regexp
	inlinePattern *regexp.Regexp
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithPlatform overrides the host platform.
func WithPlatform(platform *Platform) ProcessorOption {
	return func(p *Processor) {
		p.platform = platform
	}
}

// WithTimeout kills commands that run longer than d. Zero waits forever.
func WithTimeout(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		p.timeout = d
	}
}

// WithRecorder sets where directive events are sent.
func WithRecorder(recorder EventRecorder) ProcessorOption {
	return func(p *Processor) {
		p.recorder = recorder
	}
}

// NewProcessor creates a Processor for the host platform.
func NewProcessor(opts ...ProcessorOption) *Processor {
	p := &Processor{
		platform:      HostPlatform(),
		recorder:      logger.NewNopLogger(),
		blockPattern:  regexp.MustCompile(BlockPattern),
		inlinePattern: regexp.MustCompile(InlinePattern),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Platform returns the platform commands are run on.
func (p *Processor) Platform() *Platform {
	return p.platform
}

// Process replaces every directive in content and returns the new text.
//
// Block directives are resolved first, then inline directives are resolved in
// the resulting text. Commands run in dir, or the current directory if dir is
// empty. Problems with individual directives are rendered into the output;
// an error is only returned if a shell couldn't be started.
func (p *Processor) Process(ctx context.Context, content, dir string) (string, error) {
	content, err := p.rewrite(ctx, p.blockPattern, content, dir, false)
	if err != nil {
		return "", err
	}

	return p.rewrite(ctx, p.inlinePattern, content, dir, true)
}

func (p *Processor) rewrite(ctx context.Context, pattern *regexp.Regexp, content, dir string, inline bool) (string, error) {
	matches := pattern.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return content, nil
	}

	var out strings.Builder
	last := 0
	for _, match := range matches {
		out.WriteString(content[last:match[0]])

		replacement, err := p.RunDirective(ctx, content[match[2]:match[3]], dir, inline)
		if err != nil {
			return "", err
		}
		out.WriteString(replacement)

		last = match[1]
	}
	out.WriteString(content[last:])

	return out.String(), nil
}

// RunDirective resolves a single directive payload into its replacement text.
func (p *Processor) RunDirective(ctx context.Context, payload, dir string, inline bool) (string, error) {
	payload = strings.TrimSpace(payload)
	event := &logger.DirectiveEvent{
		Dir:     dir,
		Payload: payload,
		Inline:  inline,
	}
	start := time.Now()
	defer func() {
		event.Duration = time.Since(start)
		// Losing an audit event shouldn't fail the document.
		_ = p.recorder.RecordDirective(event)
	}()

	spec, err := ParseCommand(payload)
	var directiveErr *DirectiveError
	if errors.As(err, &directiveErr) {
		event.Outcome = logger.OutcomeInvalidDirective
		event.Error = directiveErr.Reason
		return directiveErr.Render(), nil
	}
	event.Command = spec.Command
	event.ExpectedExitCode = spec.ExpectedExitCode

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	result, err := p.platform.Run(ctx, spec.Command, dir)
	if err != nil {
		event.Outcome = logger.OutcomeSpawnError
		event.Error = err.Error()
		return "", err
	}
	event.ExitCode = result.ExitCode

	switch {
	case result.ExitCode == nil:
		event.Outcome = logger.OutcomeTerminated
		return EndedEarlyMessage, nil

	case spec.ExpectedExitCode != nil && *spec.ExpectedExitCode != *result.ExitCode:
		event.Outcome = logger.OutcomeExitCodeMismatch
		return ExitCodeMismatch(spec.Command, *result.ExitCode, *spec.ExpectedExitCode, result.Stdout, result.Stderr), nil

	default:
		event.Outcome = logger.OutcomeSuccess
		return p.platform.FormatOutput(lossyString(result.Stdout), inline), nil
	}
}
