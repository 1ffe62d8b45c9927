package core

import (
	"runtime"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Platform holds the per-OS differences: which interpreter runs directives
// and which line terminator output is normalized to.
type Platform struct {
	// Name is a short identifier, used in logs and the config dump.
	Name string
	// Shell is the argv prefix; the command is appended as the final argument.
	Shell []string
	// LineEnding is the line terminator documents are written with.
	LineEnding string
}

// PosixPlatform runs directives with sh and uses bare newlines.
func PosixPlatform() *Platform {
	return &Platform{
		Name:       "posix",
		Shell:      []string{"sh", "-c"},
		LineEnding: "\n",
	}
}

// WindowsPlatform runs directives with cmd and uses CRLF line endings.
func WindowsPlatform() *Platform {
	return &Platform{
		Name:       "windows",
		Shell:      []string{"cmd", "/C"},
		LineEnding: "\r\n",
	}
}

// HostPlatform picks the platform for the running OS.
func HostPlatform() *Platform {
	if runtime.GOOS == "windows" {
		return WindowsPlatform()
	}
	return PosixPlatform()
}

// WithShell returns a copy of the platform that launches commands with the
// given argv prefix. An empty shell keeps the platform default.
func (p *Platform) WithShell(shell []string) *Platform {
	out := *p
	if len(shell) > 0 {
		out.Shell = append([]string(nil), shell...)
	}
	return &out
}

// NormalizeLineEndings rewrites line breaks to the platform convention.
func (p *Platform) NormalizeLineEndings(s string) string {
	if p.LineEnding == "\n" {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", p.LineEnding)
}

// FormatOutput prepares captured stdout for insertion into a document.
//
// Inline output has all trailing whitespace removed. Block output ends with
// exactly one line terminator unless the command printed nothing at all.
func (p *Platform) FormatOutput(stdout string, inline bool) string {
	if inline {
		return p.NormalizeLineEndings(strings.TrimRightFunc(stdout, unicode.IsSpace))
	}

	if stdout == "" {
		return ""
	}
	return p.NormalizeLineEndings(strings.TrimRight(stdout, "\r\n")) + p.LineEnding
}

func lossyString(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "\uFFFD")
}
