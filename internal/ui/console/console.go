package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiBlue   = "\033[34m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiRed    = "\033[31m"
	ansiGray   = "\033[90m"
)

// Writer emits styled pipeline output to stdout/stderr.
type Writer struct {
	out     io.Writer
	err     io.Writer
	colored bool

	mu    sync.Mutex
	wrote bool
}

// Option customises writer behaviour.
type Option func(*options)

type options struct {
	colorOverride *bool
}

// WithColors forces colour output on or off regardless of terminal detection.
func WithColors(enabled bool) Option {
	return func(o *options) {
		o.colorOverride = &enabled
	}
}

// New constructs a console writer. Colours are enabled when stdout looks like
// a TTY and the NO_COLOR convention is not set.
func New(out, err io.Writer, opts ...Option) *Writer {
	if out == nil {
		out = io.Discard
	}
	if err == nil {
		err = io.Discard
	}

	cfg := options{}
	for _, opt := range opts {
		opt(&cfg)
	}

	var colored bool
	switch {
	case noColorSet():
		colored = false
	case cfg.colorOverride != nil:
		colored = *cfg.colorOverride
	default:
		colored = isTTY(out)
	}

	return &Writer{out: out, err: err, colored: colored}
}

func noColorSet() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

func isTTY(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := file.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// Section prints a highlighted stage heading.
func (w *Writer) Section(title string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.wrote {
		_, _ = fmt.Fprintln(w.out)
	}
	_, _ = fmt.Fprintln(w.out, w.style(fmt.Sprintf("== %s ==", strings.TrimSpace(title)), ansiBold, ansiBlue))
	w.wrote = true
}

// Info prints a neutral informational line.
func (w *Writer) Info(format string, args ...any) {
	w.printLine(w.out, "[i]", ansiBlue, "", format, args...)
}

// Success prints a success line.
func (w *Writer) Success(format string, args ...any) {
	w.printLine(w.out, "[+]", ansiGreen, ansiBold, format, args...)
}

// Warn prints a warning line to stderr.
func (w *Writer) Warn(format string, args ...any) {
	w.printLine(w.err, "[!]", ansiYellow, "", format, args...)
}

// Error prints an error line to stderr.
func (w *Writer) Error(format string, args ...any) {
	w.printLine(w.err, "[x]", ansiRed, ansiBold, format, args...)
}

// List prints a bulleted list to stdout.
func (w *Writer) List(items []string) {
	if len(items) == 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	bullet := w.style("-", ansiGray)
	for _, item := range items {
		_, _ = fmt.Fprintf(w.out, "    %s %s\n", bullet, strings.TrimSpace(item))
	}
	w.wrote = true
}

// Write emits text to stdout verbatim, without forcing a newline.
func (w *Writer) Write(text string) {
	if text == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, _ = fmt.Fprint(w.out, text)
	w.wrote = true
}

func (w *Writer) printLine(target io.Writer, icon, iconColor, msgStyle string, format string, args ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	_, _ = fmt.Fprintf(target, "  %s %s\n", w.style(icon, iconColor, ansiBold), w.style(msg, msgStyle))
	w.wrote = true
}

func (w *Writer) style(text string, codes ...string) string {
	if !w.colored {
		return text
	}
	var b strings.Builder
	for _, code := range codes {
		if code != "" {
			b.WriteString(code)
		}
	}
	if b.Len() == 0 {
		return text
	}
	b.WriteString(text)
	b.WriteString(ansiReset)
	return b.String()
}
