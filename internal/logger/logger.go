package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/moddyapp/signproxy/internal/config"
)

// ParseLevel maps the configured level name, defaulting to info.
func ParseLevel(name string) zerolog.Level {
	switch name {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Init builds the process logger and installs it as log.Logger.
//
// Output goes to stdout (json or text) or to logging.file_path when
// logging.output is "file". tee, when non-nil, always receives the JSON
// form, which is how the debug log buffer is fed. The returned func
// closes the log file, if any.
func Init(cfg config.LoggingConfig, stdout, tee io.Writer) (zerolog.Logger, func() error, error) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if stdout == nil {
		stdout = os.Stdout
	}

	closer := func() error { return nil }

	var primary io.Writer
	switch {
	case cfg.Output == "file" && cfg.FilePath != "":
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return zerolog.Nop(), closer, err
		}

		file, err := os.OpenFile(cfg.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o664)
		if err != nil {
			return zerolog.Nop(), closer, err
		}
		primary = file
		closer = file.Close
	case cfg.Format == "text":
		primary = zerolog.ConsoleWriter{Out: stdout, TimeFormat: time.RFC3339}
	default:
		primary = stdout
	}

	out := primary
	if tee != nil {
		out = zerolog.MultiLevelWriter(primary, tee)
	}

	logger := zerolog.New(out).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()

	log.Logger = logger

	return logger, closer, nil
}
