package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecurityAlert_TagsEvent(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)

	SecurityAlert(&l).Str("order_ref", "order_abc").Msg("signature mismatch")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, AlertFraudSuspect, line["alert"])
	assert.Equal(t, "order_abc", line["order_ref"])
}

func TestSetup_FallsBackToInfo(t *testing.T) {
	Setup("test", "not-a-level", false)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	Setup("test", "debug", false)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}
