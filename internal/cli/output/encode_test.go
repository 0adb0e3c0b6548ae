package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pvRow struct {
	Name     string `json:"name"`
	Channels int    `json:"channels"`
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintJSON(&buf, []pvRow{{Name: "TEMP1", Channels: 2}}))
	assert.Contains(t, buf.String(), `"name": "TEMP1"`)
	assert.Contains(t, buf.String(), `"channels": 2`)
}

func TestPrintYAMLUsesJSONKeys(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintYAML(&buf, []pvRow{{Name: "TEMP1", Channels: 2}, {Name: "MODE"}}))
	assert.Contains(t, buf.String(), "- channels: 2\n  name: TEMP1")
	assert.Contains(t, buf.String(), "name: MODE")
}
