package book

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"

	"github.com/josephlewis42/cmdrun/core"
)

// MdbookVersion is the mdBook release the protocol handling was written
// against.
const MdbookVersion = "0.4.40"

// SupportedRenderers lists the renderers cmdrun output is meant for.
var SupportedRenderers = []string{"html"}

// SupportsRenderer reports whether the preprocessor should run for the
// renderer.
func SupportsRenderer(renderer string) bool {
	for _, r := range SupportedRenderers {
		if r == renderer {
			return true
		}
	}
	return false
}

// Preprocessor runs a core.Processor over every chapter in a book.
type Preprocessor struct {
	Processor *core.Processor
	// SourceDir is the directory chapter paths are relative to.
	SourceDir string
}

// WorkingDir is the directory commands in the chapter run from: the directory
// holding the chapter's markdown file. It's empty for chapters without a
// path, in which case the current directory is used.
func WorkingDir(sourceDir string, chapter *Chapter) string {
	if chapter.Path == nil || *chapter.Path == "" {
		return ""
	}
	return filepath.Dir(filepath.Join(sourceDir, *chapter.Path))
}

// Run rewrites every chapter of the book in place.
func (p *Preprocessor) Run(ctx context.Context, book *Book) error {
	return book.MapChapters(func(chapter *Chapter) error {
		dir := WorkingDir(p.SourceDir, chapter)

		content, err := p.Processor.Process(ctx, chapter.Content, dir)
		if err != nil {
			return fmt.Errorf("chapter %q: %w", chapter.Name, err)
		}
		chapter.Content = content
		return nil
	})
}

// Handle implements the full preprocessor protocol: it reads the input from
// r, asks setup for a Preprocessor suited to the book, and writes the
// processed book to w. Nothing is written if any chapter fails.
func Handle(ctx context.Context, r io.Reader, w io.Writer, logger *log.Logger, setup func(*Context) (*Preprocessor, error)) error {
	mdbookCtx, book, err := ParseInput(r)
	if err != nil {
		return err
	}

	if mdbookCtx.MdbookVersion != "" && mdbookCtx.MdbookVersion != MdbookVersion {
		logger.Printf(
			"Warning: The cmdrun preprocessor was built against version %s of mdbook, but we're being called from version %s",
			MdbookVersion,
			mdbookCtx.MdbookVersion,
		)
	}

	preprocessor, err := setup(mdbookCtx)
	if err != nil {
		return err
	}

	if err := preprocessor.Run(ctx, book); err != nil {
		return err
	}

	return WriteBook(w, book)
}
