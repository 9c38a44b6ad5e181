package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/internal/logging"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := logging.New("debug", "json", &buf)
	require.NoError(t, err)

	log.WithField("session", "s1").Debug("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "s1", entry["session"])
	assert.Equal(t, "debug", entry["level"])
}

func TestNew_Rejects(t *testing.T) {
	var buf bytes.Buffer
	_, err := logging.New("loud", "text", &buf)
	assert.Error(t, err)
	_, err = logging.New("info", "xml", &buf)
	assert.Error(t, err)

	log, err := logging.New("warn", "", &buf)
	require.NoError(t, err)
	log.Info("dropped")
	assert.Zero(t, buf.Len())
}
