package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/concrete-go"
)

func TestConfigureJSON(t *testing.T) {
	logger := logrus.New()
	var buf bytes.Buffer
	require.NoError(t, Configure(logger, "debug", FormatJSON, &buf))

	logger.WithField("component", "project").Debug("node finished")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "node finished", line["msg"])
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, "project", line["component"])
}

func TestConfigureLevelFilters(t *testing.T) {
	logger := logrus.New()
	var buf bytes.Buffer
	require.NoError(t, Configure(logger, "warn", FormatText, &buf))

	logger.Info("hidden")
	assert.Empty(t, buf.String())
	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestConfigureRejectsBadInput(t *testing.T) {
	logger := logrus.New()
	err := Configure(logger, "loud", FormatText, nil)
	assert.ErrorIs(t, err, concrete.ErrConfiguration)

	err = Configure(logger, "info", "xml", nil)
	assert.ErrorIs(t, err, concrete.ErrConfiguration)
}

func TestNewTagsComponent(t *testing.T) {
	entry := New("store")
	assert.Equal(t, "store", entry.Data["component"])
}
