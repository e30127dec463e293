package logs

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New builds the process logger. When logFilePath is empty, output goes to
// the console only; otherwise the file gets JSON lines and the console a
// human-readable mirror.
func New(logFilePath string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	var writer io.Writer = console

	if logFilePath != "" {
		logFile, err := os.OpenFile(logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatal().Err(err).Str("path", logFilePath).Msg("cannot open log file")
		}
		writer = zerolog.MultiLevelWriter(logFile, console)
	}

	logger := zerolog.New(writer).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}
