package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/V4T54L/fieldlog/internal/domain"
)

// ErrMalformed marks a configuration file with an unusable value.
var ErrMalformed = errors.New("malformed configuration")

// MalformedError reports the first bad line of a configuration file.
type MalformedError struct {
	Line int
	Key  string
	Err  error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed configuration at line %d (%s): %v", e.Line, e.Key, e.Err)
}

func (e *MalformedError) Unwrap() error        { return e.Err }
func (e *MalformedError) Is(target error) bool { return target == ErrMalformed }

// LoadFile reads a .flconfig file. A missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads key=value lines. Keys are case-insensitive; blank lines,
// comments, lines without '=' and unknown keys are skipped. A known key with
// a bad value makes the whole file malformed: Parse then returns the defaults
// together with a *MalformedError.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || text[0] == '#' || text[0] == ';' {
			continue
		}
		key, value, ok := strings.Cut(text, "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if err := cfg.set(key, strings.TrimSpace(value)); err != nil {
			return Default(), &MalformedError{Line: line, Key: key, Err: err}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return cfg, nil
}

func (c *Config) set(key, value string) error {
	switch key {
	case "path":
		c.Path = value
		return nil
	case "maxfilesize":
		return c.MaxFileSize.UnmarshalText([]byte(value))
	case "maxtotalsize":
		return c.MaxTotalSize.UnmarshalText([]byte(value))
	case "redact":
		c.Redact = nil
		for _, field := range strings.Split(value, ",") {
			if field = strings.TrimSpace(field); field != "" {
				c.Redact = append(c.Redact, field)
			}
		}
		return nil
	}
	if name, ok := strings.CutPrefix(key, "keep"); ok {
		p, err := domain.ParsePriority(name)
		if err != nil {
			return nil
		}
		return c.keepField(p).UnmarshalText([]byte(value))
	}
	return nil
}

// WriteTo writes the configuration in .flconfig syntax.
func (c *Config) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	if c.Path != "" {
		fmt.Fprintf(&b, "path=%s\n", c.Path)
	}
	fmt.Fprintf(&b, "maxfilesize=%s\n", c.MaxFileSize)
	fmt.Fprintf(&b, "maxtotalsize=%s\n", c.MaxTotalSize)
	for _, p := range domain.Priorities() {
		fmt.Fprintf(&b, "keep%s=%s\n", p, *c.keepField(p))
	}
	if len(c.Redact) > 0 {
		fmt.Fprintf(&b, "redact=%s\n", strings.Join(c.Redact, ","))
	}
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}
