package session_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tus/flashfile/pkg/filestore"
	"github.com/tus/flashfile/pkg/flashfs"
	"github.com/tus/flashfile/pkg/session"
	"golang.org/x/exp/slog"
)

//go:generate mockgen -package session_test -destination=driver_mock_test.go github.com/tus/flashfile/pkg/flashfs Driver,Dir

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newSession creates a session on top of driver which does not log anything.
func newSession(t *testing.T, driver flashfs.Driver) *session.Session {
	t.Helper()

	s, err := session.New(session.Config{
		Driver: driver,
		Logger: discardLogger(),
	})
	require.NoError(t, err)
	return s
}

// newStoreSession creates a session on top of an in-memory filestore.
func newStoreSession(t *testing.T) (*session.Session, *filestore.FileStore) {
	t.Helper()

	store := filestore.New(filestore.Config{})
	return newSession(t, store), store
}

// writeFile creates name with the given content through the session and
// closes it again.
func writeFile(t *testing.T, s *session.Session, name, content string) {
	t.Helper()

	ok, err := s.Open(name, "w")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Write([]byte(content))
	require.NoError(t, err)
	require.True(t, ok)

	s.Close()
}

// logBuffer returns a logger writing into the returned buffer at debug level.
func logBuffer() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(handler), &buf
}
