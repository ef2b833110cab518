// Package include expands {path} tokens inside a user message into the
// literal contents of the referenced files before the message is stored
// or sent.
package include

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// DefaultMaxBytes caps a single included file at 2 MiB.
const DefaultMaxBytes = 2 << 20

// InclusionError reports a token whose file could not be included. The whole
// expansion fails; a partially expanded message is never produced.
type InclusionError struct {
	Path   string
	Reason string
	Err    error
}

func (e *InclusionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("include %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("include %s: %s", e.Path, e.Reason)
}

func (e *InclusionError) Unwrap() error { return e.Err }

// Logger is the subset of the standard logger the expander needs.
type Logger interface {
	Printf(format string, args ...interface{})
}

// Expander resolves {path} tokens against an ordered list of search
// directories, typically the working directory followed by the agent's
// uploads directory.
type Expander struct {
	searchDirs []string
	maxBytes   int64
	logger     Logger
}

// New builds an Expander. maxBytes <= 0 selects DefaultMaxBytes; a nil
// logger discards.
func New(searchDirs []string, maxBytes int64, logger Logger) *Expander {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Expander{searchDirs: searchDirs, maxBytes: maxBytes, logger: logger}
}

// Expand substitutes every {path} token in raw with the referenced file's
// literal contents. Tokens are scanned left to right without nesting;
// inclusion is not re-applied to included content. An unmatched '{' is left
// verbatim. A missing, unreadable, or oversize file fails the whole expansion
// with an InclusionError. A file that is not valid text is substituted with
// an inline error marker instead of failing.
func (x *Expander) Expand(raw string) (string, error) {
	var out strings.Builder
	rest := raw
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			out.WriteString(rest)
			return out.String(), nil
		}
		close := strings.IndexByte(rest[open:], '}')
		if close < 0 {
			out.WriteString(rest)
			return out.String(), nil
		}
		close += open
		path := rest[open+1 : close]
		if path == "" || strings.ContainsAny(path, "{") {
			// Not a token. Emit up to and including the '{' and rescan.
			out.WriteString(rest[:open+1])
			rest = rest[open+1:]
			continue
		}

		out.WriteString(rest[:open])
		content, err := x.readFile(path)
		if err != nil {
			return "", err
		}
		out.WriteString(content)
		rest = rest[close+1:]
	}
}

func (x *Expander) readFile(path string) (string, error) {
	resolved, err := x.resolve(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", &InclusionError{Path: path, Reason: "stat failed", Err: err}
	}
	if info.Size() > x.maxBytes {
		return "", &InclusionError{Path: path, Reason: fmt.Sprintf("file too large (%d bytes, max %d)", info.Size(), x.maxBytes)}
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", &InclusionError{Path: path, Reason: "unreadable", Err: err}
	}
	if !utf8.Valid(data) {
		x.logger.Printf("included file is not valid text, substituting marker: %s", path)
		return fmt.Sprintf("[ERROR: %s is not a text file]", path), nil
	}
	x.logger.Printf("included file: %s (%d bytes)", path, len(data))
	return string(data), nil
}

// resolve finds the first search directory holding the path. Absolute paths
// are used as given.
func (x *Expander) resolve(path string) (string, error) {
	if filepath.IsAbs(path) {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		return "", &InclusionError{Path: path, Reason: "file not found"}
	}
	for _, dir := range x.searchDirs {
		candidate := filepath.Join(dir, path)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", &InclusionError{Path: path, Reason: "file not found"}
}
