package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestSetupLoggerFormat(t *testing.T) {
	saved := log.Logger
	defer func() { log.Logger = saved }()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	setupLogger(&buf)
	logger := WithDownload("abc")
	logger.Info().Str("dest", "out.bin").Msg("Complete")

	line := buf.String()
	assert.Contains(t, line, "| INFO  |")
	assert.Contains(t, line, "[ Complete ]")
	assert.Contains(t, line, "download_id=abc")
	assert.Contains(t, line, "dest=out.bin")
}
