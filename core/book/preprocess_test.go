package book

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/josephlewis42/cmdrun/core"
	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string {
	return &s
}

func TestSupportsRenderer(t *testing.T) {
	assert.True(t, SupportsRenderer("html"))
	assert.False(t, SupportsRenderer("markdown"))
	assert.False(t, SupportsRenderer(""))
}

func TestWorkingDir(t *testing.T) {
	cases := map[string]struct {
		sourceDir string
		path      *string
		expected  string
	}{
		"draft":       {sourceDir: "/book/src", path: nil, expected: ""},
		"empty-path":  {sourceDir: "/book/src", path: strPtr(""), expected: ""},
		"top-level":   {sourceDir: "/book/src", path: strPtr("intro.md"), expected: filepath.Join("/book/src")},
		"nested":      {sourceDir: "/book/src", path: strPtr("guide/setup.md"), expected: filepath.Join("/book/src", "guide")},
		"relative":    {sourceDir: "src", path: strPtr("a/b/c.md"), expected: filepath.Join("src", "a", "b")},
		"no-src-root": {sourceDir: "", path: strPtr("a/c.md"), expected: "a"},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			assert.Equal(t, tc.expected, WorkingDir(tc.sourceDir, &Chapter{Path: tc.path}))
		})
	}
}

func posixPreprocessor(t *testing.T, sourceDir string) *Preprocessor {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("test relies on a POSIX sh")
	}

	return &Preprocessor{
		Processor: core.NewProcessor(core.WithPlatform(core.PosixPlatform())),
		SourceDir: sourceDir,
	}
}

func TestPreprocessor_Run(t *testing.T) {
	src := t.TempDir()
	assert.Nil(t, os.MkdirAll(filepath.Join(src, "guide"), 0755))
	assert.Nil(t, os.WriteFile(filepath.Join(src, "guide", "data.txt"), []byte("nested data\n"), 0644))
	assert.Nil(t, os.WriteFile(filepath.Join(src, "data.txt"), []byte("top data\n"), 0644))

	book := &Book{Sections: []*BookItem{
		{Chapter: &Chapter{
			Name:    "Top",
			Path:    strPtr("index.md"),
			Content: "<!-- cmdrun cat data.txt -->\n",
			SubItems: []*BookItem{
				{Chapter: &Chapter{
					Name:    "Guide",
					Path:    strPtr("guide/index.md"),
					Content: "Data: <!-- cmdrun cat data.txt -->",
				}},
			},
		}},
		{raw: []byte(`"Separator"`)},
		{Chapter: &Chapter{Name: "Untouched", Path: strPtr("plain.md"), Content: "# Plain\n"}},
	}}

	err := posixPreprocessor(t, src).Run(context.Background(), book)

	assert.Nil(t, err)
	assert.Equal(t, "top data\n", book.Sections[0].Chapter.Content)
	assert.Equal(t, "Data: nested data", book.Sections[0].Chapter.SubItems[0].Chapter.Content)
	assert.Equal(t, "# Plain\n", book.Sections[2].Chapter.Content)
}

func TestPreprocessor_Run_spawnFailure(t *testing.T) {
	preprocessor := &Preprocessor{
		Processor: core.NewProcessor(core.WithPlatform(&core.Platform{
			Name:       "broken",
			Shell:      []string{"cmdrun-shell-that-does-not-exist"},
			LineEnding: "\n",
		})),
	}

	book := &Book{Sections: []*BookItem{
		{Chapter: &Chapter{Name: "Broken", Content: "<!-- cmdrun true -->"}},
	}}

	err := preprocessor.Run(context.Background(), book)
	assert.ErrorIs(t, err, core.ErrSpawn)
	assert.Contains(t, err.Error(), `chapter "Broken"`)
}

func handleInput(mdbookVersion, content string) string {
	return fmt.Sprintf(`[
		{"root": "/book", "config": {}, "renderer": "html", "mdbook_version": %q},
		{"sections": [{"Chapter": {"name": "Only", "content": %q, "number": [1], "sub_items": [], "path": "only.md", "source_path": "only.md", "parent_names": []}}], "__non_exhaustive": null}
	]`, mdbookVersion, content)
}

func TestHandle(t *testing.T) {
	src := t.TempDir()
	preprocessor := posixPreprocessor(t, src)

	var stderr, stdout bytes.Buffer
	var setupCtx *Context
	err := Handle(
		context.Background(),
		strings.NewReader(handleInput(MdbookVersion, "<!-- cmdrun basename \"$(pwd)\" -->\n")),
		&stdout,
		log.New(&stderr, "", 0),
		func(ctx *Context) (*Preprocessor, error) {
			setupCtx = ctx
			return preprocessor, nil
		},
	)

	assert.Nil(t, err)
	assert.Equal(t, "/book", setupCtx.Root)
	assert.Empty(t, stderr.String())

	_, book, err := ParseInput(strings.NewReader(fmt.Sprintf("[{}, %s]", stdout.String())))
	assert.Nil(t, err)
	assert.Equal(t, filepath.Base(src)+"\n", book.Sections[0].Chapter.Content)
}

func TestHandle_versionMismatch(t *testing.T) {
	preprocessor := posixPreprocessor(t, "")

	var stderr, stdout bytes.Buffer
	err := Handle(
		context.Background(),
		strings.NewReader(handleInput("0.1.0", "no directives")),
		&stdout,
		log.New(&stderr, "", 0),
		func(*Context) (*Preprocessor, error) { return preprocessor, nil },
	)

	assert.Nil(t, err)
	assert.Contains(t, stderr.String(), "built against version "+MdbookVersion)
	assert.Contains(t, stderr.String(), "called from version 0.1.0")
	assert.Contains(t, stdout.String(), `"content":"no directives"`)
}

func TestHandle_setupError(t *testing.T) {
	setupErr := errors.New("bad config")

	var stdout bytes.Buffer
	err := Handle(
		context.Background(),
		strings.NewReader(handleInput(MdbookVersion, "")),
		&stdout,
		log.New(&bytes.Buffer{}, "", 0),
		func(*Context) (*Preprocessor, error) { return nil, setupErr },
	)

	assert.ErrorIs(t, err, setupErr)
	assert.Empty(t, stdout.String())
}

func TestHandle_badInput(t *testing.T) {
	var stdout bytes.Buffer
	err := Handle(
		context.Background(),
		strings.NewReader("not json"),
		&stdout,
		log.New(&bytes.Buffer{}, "", 0),
		func(*Context) (*Preprocessor, error) {
			t.Fatal("setup called for bad input")
			return nil, nil
		},
	)

	assert.NotNil(t, err)
	assert.Empty(t, stdout.String())
}
