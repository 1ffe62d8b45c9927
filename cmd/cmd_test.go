package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
)

// openFileFs counts files opened with OpenFile that haven't been closed yet.
type openFileFs struct {
	afero.Fs

	mu   sync.Mutex
	open map[string]int
}

func newOpenFileFs() *openFileFs {
	return &openFileFs{Fs: afero.NewOsFs(), open: make(map[string]int)}
}

func (fs *openFileFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	f, err := fs.Fs.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.open[filepath.Base(name)]++
	return &countedFile{File: f, fs: fs, name: filepath.Base(name)}, nil
}

func (fs *openFileFs) Open(name string) (afero.File, error) {
	return fs.OpenFile(name, os.O_RDONLY, 0)
}

func (fs *openFileFs) openCount(name string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.open[name]
}

type countedFile struct {
	afero.File

	fs     *openFileFs
	name   string
	closed bool
}

func (f *countedFile) Close() error {
	if !f.closed {
		f.closed = true
		f.fs.mu.Lock()
		f.fs.open[f.name]--
		f.fs.mu.Unlock()
	}
	return f.File.Close()
}

// executeCommand runs the root command with fresh flag state.
func executeCommand(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()

	return executeCommandFs(t, afero.NewOsFs(), stdin, args...)
}

func executeCommandFs(t *testing.T, fs afero.Fs, stdin string, args ...string) (string, string, error) {
	t.Helper()

	cfgPath = "."
	runDir, runJobs, runWrite = "", 1, false
	appFs = fs

	for _, flags := range []*pflag.FlagSet{rootCmd.PersistentFlags(), runCmd.Flags()} {
		flags.VisitAll(func(f *pflag.Flag) {
			f.Changed = false
		})
	}

	var stdout, stderr bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func skipUnlessPosix(t *testing.T) {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("test relies on a POSIX sh")
	}
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestSupports(t *testing.T) {
	cases := map[string]struct {
		renderer string
		expected error
	}{
		"html":     {renderer: "html", expected: nil},
		"markdown": {renderer: "markdown", expected: exitCodeError(1)},
		"epub":     {renderer: "epub", expected: exitCodeError(1)},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			stdout, _, err := executeCommand(t, "", "supports", tc.renderer)

			assert.Equal(t, tc.expected, err)
			assert.Empty(t, stdout)
		})
	}
}

func TestRun(t *testing.T) {
	skipUnlessPosix(t)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.md"), "A says <!-- cmdrun echo hi -->\n")
	writeFile(t, filepath.Join(dir, "sub", "b.md"), "<!-- cmdrun cat data.txt -->\n")
	writeFile(t, filepath.Join(dir, "sub", "data.txt"), "from sub\n")

	stdout, _, err := executeCommand(t, "",
		"run", "--config", dir, "-j", "2",
		filepath.Join(dir, "a.md"),
		filepath.Join(dir, "sub", "b.md"),
	)

	assert.Nil(t, err)
	assert.Equal(t, "A says hi\nfrom sub\n", stdout)
}

func TestRun_dir(t *testing.T) {
	skipUnlessPosix(t)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "doc.md"), "<!-- cmdrun basename \"$(pwd)\" -->\n")
	other := filepath.Join(dir, "elsewhere")
	writeFile(t, filepath.Join(other, "keep"), "")

	stdout, _, err := executeCommand(t, "", "run", "--config", dir, "-C", other, filepath.Join(dir, "doc.md"))

	assert.Nil(t, err)
	assert.Equal(t, "elsewhere\n", stdout)
}

func TestRun_write(t *testing.T) {
	skipUnlessPosix(t)

	dir := t.TempDir()
	doc := filepath.Join(dir, "doc.md")
	writeFile(t, doc, "Total: <!-- cmdrun expr 2 + 3 -->\n")

	stdout, _, err := executeCommand(t, "", "run", "--config", dir, "--write", doc)

	assert.Nil(t, err)
	assert.Empty(t, stdout)

	written, err := os.ReadFile(doc)
	assert.Nil(t, err)
	assert.Equal(t, "Total: 5\n", string(written))
}

func TestRun_errors(t *testing.T) {
	dir := t.TempDir()

	cases := map[string][]string{
		"no-files":     {"run", "--config", dir},
		"bad-jobs":     {"run", "--config", dir, "-j", "0", "doc.md"},
		"missing-file": {"run", "--config", dir, filepath.Join(dir, "missing.md")},
	}

	for tn, args := range cases {
		t.Run(tn, func(t *testing.T) {
			_, _, err := executeCommand(t, "", args...)
			assert.NotNil(t, err)
		})
	}
}

func TestConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "book.toml"), `[book]
title = "Config"
src = "pages"

[preprocessor.cmdrun]
shell = "bash -o pipefail -c"
timeout = "1m30s"
`)

	stdout, _, err := executeCommand(t, "", "config", "--config", dir)

	assert.Nil(t, err)
	assert.Contains(t, stdout, "root: "+dir+"\n")
	assert.Contains(t, stdout, "source_dir: "+filepath.Join(dir, "pages")+"\n")
	assert.Contains(t, stdout, "shell:\n- bash\n- -o\n- pipefail\n- -c\n")
	assert.Contains(t, stdout, "timeout: 1m30s\n")
}

func TestConfig_invalid(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "book.toml"), "[preprocessor.cmdrun]\ntimeout = \"soon\"\n")

	_, _, err := executeCommand(t, "", "config", "--config", dir)
	assert.NotNil(t, err)
}

func TestInit(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "book.toml"), "[book]\ntitle = \"Init\"\n")

	stdout, stderr, err := executeCommand(t, "", "init", "--config", dir)
	assert.Nil(t, err)
	assert.Equal(t, filepath.Join(dir, "book.toml")+"\n", stdout)
	assert.Contains(t, stderr, "Added [preprocessor.cmdrun]")

	stdout, stderr, err = executeCommand(t, "", "init", "--config", dir)
	assert.Nil(t, err)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "already enables")
}

func TestInit_noBook(t *testing.T) {
	_, _, err := executeCommand(t, "", "init", "--config", t.TempDir())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPreprocess_andEventsReport(t *testing.T) {
	skipUnlessPosix(t)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "book.toml"), `[book]
title = "Events"

[preprocessor.cmdrun]
event_log = "logs/events.jsonl"
`)
	writeFile(t, filepath.Join(dir, "src", "chapter.md"), "")

	input := fmt.Sprintf(`[
		{"root": %q, "config": {}, "renderer": "html", "mdbook_version": "0.4.40"},
		{"sections": [{"Chapter": {"name": "Chapter", "content": "<!-- cmdrun echo done -->\n", "number": [1], "sub_items": [], "path": "chapter.md", "source_path": "chapter.md", "parent_names": []}}], "__non_exhaustive": null}
	]`, dir)

	stdout, _, err := executeCommand(t, input, "--config", dir)
	assert.Nil(t, err)
	assert.Contains(t, stdout, `"content":"done\n"`)

	report, _, err := executeCommand(t, "", "events", "report", "--config", dir)
	assert.Nil(t, err)
	assert.Contains(t, report, "log_entries: 1\n")
	assert.Contains(t, report, "success: 1\n")
}

func TestEventsReport_noLog(t *testing.T) {
	_, _, err := executeCommand(t, "", "events", "report", "--config", t.TempDir())
	assert.NotNil(t, err)
}

func chapterInput(root, content string) string {
	return fmt.Sprintf(`[
		{"root": %q, "config": {}, "renderer": "html", "mdbook_version": "0.4.40"},
		{"sections": [{"Chapter": {"name": "Chapter", "content": %q, "number": [1], "sub_items": [], "path": "chapter.md", "source_path": "chapter.md", "parent_names": []}}], "__non_exhaustive": null}
	]`, root, content)
}

func TestPreprocess_closesEventLog(t *testing.T) {
	skipUnlessPosix(t)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "book.toml"), "[preprocessor.cmdrun]\nevent_log = \"events.jsonl\"\n")
	writeFile(t, filepath.Join(dir, "src", "chapter.md"), "")

	fs := newOpenFileFs()
	for i := 0; i < 3; i++ {
		_, _, err := executeCommandFs(t, fs, chapterInput(dir, "<!-- cmdrun echo hi -->\n"), "--config", dir)
		assert.Nil(t, err)
	}

	assert.Equal(t, 0, fs.openCount("events.jsonl"))

	written, err := os.ReadFile(filepath.Join(dir, "events.jsonl"))
	assert.Nil(t, err)
	assert.Equal(t, 3, strings.Count(string(written), "\n"))
}

func TestPreprocess_contextRoot(t *testing.T) {
	skipUnlessPosix(t)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "book.toml"), "[preprocessor.cmdrun]\nevent_log = \"events.jsonl\"\n")
	writeFile(t, filepath.Join(dir, "src", "chapter.md"), "")

	// An earlier invocation with --config must not leak into the next one.
	_, _, err := executeCommand(t, "", "config", "--config", t.TempDir())
	assert.Nil(t, err)

	stdout, _, err := executeCommand(t, chapterInput(dir, "<!-- cmdrun echo hi -->\n"))
	assert.Nil(t, err)
	assert.Contains(t, stdout, `"content":"hi\n"`)

	// The book.toml at the context root was used.
	_, err = os.Stat(filepath.Join(dir, "events.jsonl"))
	assert.Nil(t, err)
}
