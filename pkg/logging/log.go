package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func SetupLogger() {
	setupLogger(os.Stderr)
}

func setupLogger(out io.Writer) {
	// Color is disabled so we don't have to deal with ANSI escape codes in our logoutput
	output := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: true}
	output.FormatLevel = func(i interface{}) string {
		return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
	}
	output.FormatMessage = func(i interface{}) string {
		return fmt.Sprintf("[ %s ]", i)
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

func GetLogger() zerolog.Logger {
	return log.Logger
}

// WithDownload returns the global logger tagged with a download id, so lines from
// concurrent downloads (multifile) can be told apart.
func WithDownload(id string) zerolog.Logger {
	return log.Logger.With().Str("download_id", id).Logger()
}
