package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNew_ParsesLevel(t *testing.T) {
	log := New(Config{Level: "warn"})
	assert.Equal(t, zerolog.WarnLevel, log.GetLevel())
}

func TestNew_FallsBackToInfoOnInvalidLevel(t *testing.T) {
	log := New(Config{Level: "not-a-level"})
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}

func TestNew_PrettyStillParsesLevel(t *testing.T) {
	log := New(Config{Level: "error", Pretty: true})
	assert.Equal(t, zerolog.ErrorLevel, log.GetLevel())
}
