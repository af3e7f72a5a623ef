package importer

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/mappa/errors"
)

func TestCLIEmitter_WritesToWriter(t *testing.T) {
	var buf bytes.Buffer
	e := NewCLIEmitter(&buf, 1)

	e.EmitStage("parse", "reading default.jtm.json")
	e.EmitProgress(25, map[string]interface{}{"type": "topics"})
	e.EmitProgress(3, nil)
	e.EmitComplete(map[string]interface{}{"topics": 25})
	e.EmitError("load", errors.New("disk full"))
	e.EmitInfo("using embedded dataset")

	out := buf.String()
	assert.Contains(t, out, "parse")
	assert.Contains(t, out, "reading default.jtm.json")
	assert.Contains(t, out, "topics")
	assert.Contains(t, out, "items")
	assert.Contains(t, out, "Import complete")
	assert.Contains(t, out, "disk full")
	assert.Contains(t, out, "using embedded dataset")
}

func TestCLIEmitter_VerbosityFiltering(t *testing.T) {
	var buf bytes.Buffer
	NewCLIEmitter(&buf, 0).EmitInfo("should not show")
	assert.Empty(t, buf.String())
}

func TestJSONEmitter_EventStructure(t *testing.T) {
	var buf bytes.Buffer
	e := NewJSONEmitter(&buf)

	e.EmitStage("load", "adding graph")
	e.EmitProgress(7, map[string]interface{}{"type": "associations"})
	e.EmitError("parse", errors.New("bad item"))

	dec := json.NewDecoder(&buf)

	var stage ProgressEvent
	require.NoError(t, dec.Decode(&stage))
	assert.Equal(t, "stage", stage.Type)
	assert.Equal(t, "load", stage.Data["stage"])
	assert.False(t, stage.Timestamp.IsZero())

	var progress ProgressEvent
	require.NoError(t, dec.Decode(&progress))
	assert.Equal(t, "progress", progress.Type)
	assert.Equal(t, float64(7), progress.Data["count"])
	assert.Equal(t, "associations", progress.Data["type"])

	var failure ProgressEvent
	require.NoError(t, dec.Decode(&failure))
	assert.Equal(t, "error", failure.Type)
	assert.Equal(t, "bad item", failure.Data["error"])
}

func TestNopEmitter(t *testing.T) {
	var e Emitter = NopEmitter{}
	e.EmitStage("x", "y")
	e.EmitProgress(1, nil)
	e.EmitComplete(nil)
	e.EmitError("x", errors.New("ignored"))
	e.EmitInfo("ignored")
}
