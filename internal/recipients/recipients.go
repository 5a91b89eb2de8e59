package recipients

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"unicode"
)

// ChatSuffix is appended to the digits of a phone number to form a private
// chat address understood by the gateway.
const ChatSuffix = "@c.us"

// MinDigits is the minimum digit count for a number to be addressable.
const MinDigits = 10

// ErrInvalidNumber is returned when a phone number cannot be turned into a
// chat address.
var ErrInvalidNumber = errors.New("invalid number")

// Normalize strips every non-digit from raw and returns the canonical chat
// address. The second return value is false when fewer than MinDigits remain.
func Normalize(raw string) (string, bool) {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() < MinDigits {
		return "", false
	}
	b.WriteString(ChatSuffix)
	return b.String(), true
}

// Resolve is Normalize with an error return for callers that propagate
// failures.
func Resolve(raw string) (string, error) {
	addr, ok := Normalize(raw)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidNumber, strings.TrimSpace(raw))
	}
	return addr, nil
}

// Parse reads one raw number per line. Blank lines, lines starting with '#'
// and invalid numbers are ignored; duplicates keep their first position.
func Parse(r io.Reader) ([]string, error) {
	reader := bufio.NewReader(r)
	seen := make(map[string]struct{})
	out := []string{}

	for {
		raw, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("recipients: read: %w", err)
		}
		line := strings.TrimFunc(raw, unicode.IsSpace)
		if line != "" && !strings.HasPrefix(line, "#") {
			if addr, ok := Normalize(line); ok {
				if _, dup := seen[addr]; !dup {
					seen[addr] = struct{}{}
					out = append(out, addr)
				}
			}
		}
		if err != nil {
			return out, nil
		}
	}
}

// LoadFile parses the recipient list at path. A missing file yields an empty
// list rather than an error.
func LoadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("recipients: open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// FileSource re-reads the recipient file on every call so edits are picked up
// without a restart.
type FileSource struct {
	path string
}

// NewFileSource constructs a FileSource for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Path returns the configured file location.
func (s *FileSource) Path() string {
	return s.path
}

// Recipients returns the parsed, de-duplicated chat addresses.
func (s *FileSource) Recipients() ([]string, error) {
	return LoadFile(s.path)
}
