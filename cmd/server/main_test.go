package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillsociety/auditions/internal/db"
	"github.com/quillsociety/auditions/internal/docstore/open"
	"github.com/quillsociety/auditions/internal/logging"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func sqliteEnv(t *testing.T) (dbPath, archiveDir string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "auditions.db")
	archiveDir = filepath.Join(dir, "archive")
	t.Setenv("AUDITIONS_CONFIG", "")
	t.Setenv("AUDITIONS_STORE_DRIVER", "sqlite")
	t.Setenv("AUDITIONS_SQLITE_PATH", dbPath)
	t.Setenv("AUDITIONS_ARCHIVE_KIND", "fs")
	t.Setenv("AUDITIONS_ARCHIVE_DIR", archiveDir)
	t.Setenv("AUDITIONS_LOG_LEVEL", "error")
	return dbPath, archiveDir
}

func TestMemberAddAndList(t *testing.T) {
	sqliteEnv(t)

	out, err := runCLI(t, "member", "add", "--email", "ada@quill.example", "--name", "Ada", "--password", "s3cret-pass", "--role", "admin")
	require.NoError(t, err)
	assert.Contains(t, out, "created ada@quill.example")

	_, err = runCLI(t, "member", "add", "--email", "ada@quill.example", "--name", "Ada", "--password", "other-pass")
	assert.Error(t, err, "duplicate email")

	_, err = runCLI(t, "member", "add", "--email", "bo@quill.example", "--name", "Bo", "--password", "x", "--role", "owner")
	assert.Error(t, err, "unknown role")

	out, err = runCLI(t, "member", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "ada@quill.example")
	assert.Contains(t, out, "admin")
}

func TestReportWritesToArchive(t *testing.T) {
	_, archiveDir := sqliteEnv(t)

	out, err := runCLI(t, "report", "--responses")
	require.NoError(t, err)
	loc := strings.TrimSpace(out)
	assert.True(t, strings.HasPrefix(loc, archiveDir), loc)
	_, err = os.Stat(loc)
	require.NoError(t, err)

	out, err = runCLI(t, "report", "--round", "round2")
	require.NoError(t, err)
	assert.Contains(t, out, "report-round2-")

	_, err = runCLI(t, "report", "--round", "round7")
	assert.Error(t, err)
}

func TestMigrateToBadger(t *testing.T) {
	sqliteEnv(t)
	_, err := runCLI(t, "member", "add", "--email", "kim@quill.example", "--name", "Kim", "--password", "pass-word-1")
	require.NoError(t, err)

	badgerDir := filepath.Join(t.TempDir(), "badger")
	_, err = runCLI(t, "migrate", "--to-driver", "badger", "--to-badger-path", badgerDir)
	require.NoError(t, err)

	store, err := open.Open(context.Background(), open.Config{Driver: "badger", BadgerPath: badgerDir}, logging.Discard())
	require.NoError(t, err)
	repo := db.NewRepository(store, logging.Discard())
	defer repo.Close()
	m, err := repo.FindMemberByEmail(context.Background(), "kim@quill.example")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "Kim", m.Name)
}

func TestMigrateRequiresTarget(t *testing.T) {
	sqliteEnv(t)
	_, err := runCLI(t, "migrate", "--to-driver", "memory")
	assert.Error(t, err)
}

func TestTakeRequiresRespondent(t *testing.T) {
	sqliteEnv(t)
	_, err := runCLI(t, "take")
	assert.Error(t, err)
}
