package report_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/illmade-knight/go-storebridge/pkg/report"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogReporter(t *testing.T) {
	var buf bytes.Buffer
	r := report.NewLogReporter(zerolog.New(&buf))

	r.Success("Object /a/obj created", "/a/obj")
	r.Error("Cannot create container /b/", "")
	r.Warning("payload too large", "/galaxy/info")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	var entries []map[string]any
	for _, l := range lines {
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(l), &m))
		entries = append(entries, m)
	}

	assert.Equal(t, "info", entries[0]["level"])
	assert.Equal(t, "Success", entries[0]["status"])
	assert.Equal(t, "Success - Object /a/obj created", entries[0]["message"])
	assert.Equal(t, "/a/obj", entries[0]["subject"])

	assert.Equal(t, "error", entries[1]["level"])
	assert.Equal(t, "Error - Cannot create container /b/", entries[1]["message"])
	_, hasSubject := entries[1]["subject"]
	assert.False(t, hasSubject, "empty subject is omitted")

	assert.Equal(t, "warn", entries[2]["level"])
	assert.Equal(t, "Warning", entries[2]["status"])
}

func TestRecorder(t *testing.T) {
	var r report.Recorder
	r.Success("ok", "s")
	r.Error("bad", "")

	assert.Equal(t, []string{report.StatusSuccess, report.StatusError}, r.Statuses())
	assert.Equal(t, report.Entry{Status: "Error", Msg: "bad"}, r.Entries()[1])
}
