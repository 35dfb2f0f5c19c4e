package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/huddle/internal/domain"
	"github.com/nfrund/huddle/internal/logstore"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	historyFormat, historyLimit, topicsFormat = "table", 0, "table"

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seedFileLog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "messages.json")
	backend, err := logstore.Open(context.Background(), logstore.Settings{Backend: logstore.BackendFile, File: path}, nil)
	require.NoError(t, err)

	bob := "bob"
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, backend.Persist(context.Background(), []domain.Message{
		{ID: 1, Author: "alice", Text: "hello", Timestamp: ts},
		{ID: 2, Author: "alice", Text: "psst", Target: &bob, Timestamp: ts},
		{ID: 3, Author: "carol", Text: "last", Timestamp: ts},
	}))
	require.NoError(t, backend.Close())

	t.Setenv("HUDDLE_LOG_BACKEND", "file")
	t.Setenv("HUDDLE_LOG_FILE", path)
	return path
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "Huddle v"+version+"\n", out)
}

func TestHistory_Table(t *testing.T) {
	seedFileLog(t)

	out, err := run(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "AUTHOR")
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "bob")
	assert.Contains(t, out, "last")
}

func TestHistory_JSONWithLimit(t *testing.T) {
	seedFileLog(t)

	out, err := run(t, "history", "--format", "json", "--limit", "2")
	require.NoError(t, err)

	var messages []domain.Message
	require.NoError(t, json.Unmarshal([]byte(out), &messages))
	require.Len(t, messages, 2)
	assert.Equal(t, "psst", messages[0].Text)
	assert.Equal(t, "last", messages[1].Text)
}

func TestHistory_EmptyAndBadFormat(t *testing.T) {
	t.Setenv("HUDDLE_LOG_BACKEND", "file")
	t.Setenv("HUDDLE_LOG_FILE", filepath.Join(t.TempDir(), "none.json"))

	out, err := run(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No messages.")

	_, err = run(t, "history", "--format", "xml")
	assert.Error(t, err)
}

func TestTopics(t *testing.T) {
	out, err := run(t, "topics", "--format", "json")
	require.NoError(t, err)

	var topics []string
	require.NoError(t, json.Unmarshal([]byte(out), &topics))
	assert.Contains(t, topics, "chat.identity.joined")
	assert.Contains(t, topics, "chat.message.deleted")
}
