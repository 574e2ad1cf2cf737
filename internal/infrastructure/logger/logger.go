package logger

import (
	"io"
	"log"
	"os"
)

var (
	Info  *log.Logger
	Error *log.Logger
	Debug *log.Logger
	Warn  *log.Logger
)

const logFlags = log.Ldate | log.Ltime | log.LUTC | log.Lshortfile

func init() {
	SetOutput(os.Stdout)
}

// SetOutput points every level at w. The worker process logs to stderr
// since its stdout is the result channel.
func SetOutput(w io.Writer) {
	Info = log.New(w, "INFO: ", logFlags)
	Error = log.New(w, "ERROR: ", logFlags)
	Debug = log.New(w, "DEBUG: ", logFlags)
	Warn = log.New(w, "WARN: ", logFlags)
}

// WithPrefix returns a logger that tags every line, e.g. with a job id.
func WithPrefix(base *log.Logger, prefix string) *log.Logger {
	return log.New(base.Writer(), base.Prefix()+prefix+" ", base.Flags())
}
