package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLevels(t *testing.T) {
	testCases := []struct {
		input    string
		expected logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"info", logrus.InfoLevel},
		{"warn", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"", logrus.InfoLevel},
		{"verbose", logrus.InfoLevel},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			Init(tc.input, "json")
			assert.Equal(t, tc.expected, GetLogger().GetLevel())
		})
	}
}

func TestWithComponentWritesJSON(t *testing.T) {
	Init("info", "json")
	var buf bytes.Buffer
	GetLogger().SetOutput(&buf)

	WithComponent("inserter").WithField("batch_size", 3).Info("batch stored")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "inserter", entry["component"])
	assert.Equal(t, float64(3), entry["batch_size"])
	assert.Equal(t, "batch stored", entry["msg"])
}
