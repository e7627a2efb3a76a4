package log

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/mgutz/ansi"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

const timestampFormat = "15:04:05.000"

var levelColorizers = map[Level]func(string) string{
	ErrorLevel: ansi.ColorFunc("red"),
	WarnLevel:  ansi.ColorFunc("yellow"),
	InfoLevel:  ansi.ColorFunc("green"),
	DebugLevel: ansi.ColorFunc("blue+h"),
	TraceLevel: ansi.ColorFunc("white"),
}

var (
	timestampColorizer = ansi.ColorFunc("black+h")
	prefixColorizer    = ansi.ColorFunc("cyan")
	fieldKeyColorizer  = ansi.ColorFunc("white+d")
)

// TextFormatter renders entries as `time LEVEL [prefix] message key=value ...`. The level,
// prefix and field keys are colored when the logger writes to a terminal.
type TextFormatter struct {
	DisableTimestamp bool
	DisableColors    bool
}

// NewTextFormatter returns the default formatter.
func NewTextFormatter() *TextFormatter {
	return &TextFormatter{}
}

// Format implements logrus.Formatter.
func (f *TextFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	buf := entry.Buffer
	if buf == nil {
		buf = new(bytes.Buffer)
	}

	colored := !f.DisableColors && entry.Logger != nil && IsTerminal(entry.Logger.Out)

	colorize := func(colorizer func(string) string, s string) string {
		if !colored || colorizer == nil {
			return s
		}

		return colorizer(s)
	}

	if !f.DisableTimestamp {
		buf.WriteString(colorize(timestampColorizer, entry.Time.Format(timestampFormat)))
		buf.WriteByte(' ')
	}

	level := FromLogrusLevel(entry.Level)

	buf.WriteString(colorize(levelColorizers[level], level.ShortName()))
	buf.WriteByte(' ')

	fields := Fields(entry.Data)

	if prefix, ok := fields[FieldKeyPrefix]; ok {
		buf.WriteString(colorize(prefixColorizer, fmt.Sprintf("[%v]", prefix)))
		buf.WriteByte(' ')
	}

	buf.WriteString(entry.Message)

	for _, key := range fields.Keys(FieldKeyPrefix) {
		fmt.Fprintf(buf, " %s=%v", colorize(fieldKeyColorizer, key), fields[key])
	}

	buf.WriteByte('\n')

	return buf.Bytes(), nil
}

// IsTerminal reports whether w is a terminal, including Cygwin and MSYS terminals on Windows.
func IsTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}

	fd := file.Fd()

	return term.IsTerminal(int(fd)) || isatty.IsCygwinTerminal(fd)
}
