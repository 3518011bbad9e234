package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"gwi.com/pdf-chatbot/internal/store"
)

func TestOneLine(t *testing.T) {
	assert.Equal(t, "a b c", oneLine("a\n b\tc ", 10))
	assert.Equal(t, "abcdefg...", oneLine(strings.Repeat("abcdefghij", 3), 10))
	assert.Equal(t, "héllo", oneLine("héllo", 5))
}

func TestHistoryAction(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "users.db")
	t.Setenv("DATABASE_URL", dbPath)
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("LOG_LEVEL", "ERROR")

	st, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	_, err = st.CreateUser(ctx, "alice", "hash")
	require.NoError(t, err)
	_, err = st.AppendQuery(ctx, "alice", "What is it?", "A test.")
	require.NoError(t, err)
	require.NoError(t, st.Close())

	var out bytes.Buffer
	app := &cli.Command{
		Name:   "pdfchat",
		Writer: &out,
		Flags:  []cli.Flag{&cli.StringFlag{Name: "config"}},
		Commands: []*cli.Command{{
			Name: "history",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "user", Required: true},
				&cli.BoolFlag{Name: "json"},
			},
			Action: historyAction,
		}},
	}

	require.NoError(t, app.Run(ctx, []string{"pdfchat", "history", "--user", "alice", "--json"}))
	assert.Contains(t, out.String(), `"question":"What is it?"`)
	assert.Contains(t, out.String(), `"answer":"A test."`)
}
