package session_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tus/flashfile/pkg/filestore"
	"github.com/tus/flashfile/pkg/session"
)

// readAll opens name and calls read until it reports that nothing was read.
func readAll(t *testing.T, s *session.Session, name string, read func() ([]byte, bool, error)) []string {
	t.Helper()

	ok, err := s.Open(name, "r")
	require.NoError(t, err)
	require.True(t, ok)

	var chunks []string
	for i := 0; i < 100; i++ {
		data, ok, err := read()
		require.NoError(t, err)
		if !ok {
			return chunks
		}
		chunks = append(chunks, string(data))
	}
	t.Fatal("read did not reach the end of the file")
	return nil
}

func TestReadDelimiter(t *testing.T) {
	tests := []struct {
		Name      string
		Content   string
		Delimiter int
		Chunks    []string
	}{
		{"MissingDelimiter", "ab", 'c', []string{"ab"}},
		{"TrailingDelimiter", "a,b,", ',', []string{"a,", "b,"}},
		{"LeadingDelimiter", ",,x", ',', []string{",", ",", "x"}},
		{"NoDelimiter", "abc", session.NoDelimiter, []string{"abc"}},
		{"OutOfRangeDelimiter", "abc", 300, []string{"abc"}},
		{"NegativeDelimiter", "abc", -7, []string{"abc"}},
		{"ZeroByteDelimiter", "a\x00b", 0, []string{"a\x00", "b"}},
		{"EmptyFile", "", 'x', nil},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			s, _ := newStoreSession(t)
			writeFile(t, s, "f", test.Content)

			chunks := readAll(t, s, "f", func() ([]byte, bool, error) {
				return s.Read(session.ReadRequest{Delimiter: test.Delimiter})
			})
			assert.Equal(t, test.Chunks, chunks)
		})
	}
}

func TestReadLine(t *testing.T) {
	s, _ := newStoreSession(t)
	writeFile(t, s, "f", "x\ny")

	chunks := readAll(t, s, "f", s.ReadLine)
	assert.Equal(t, []string{"x\n", "y"}, chunks)
}

func TestReadNothingLeft(t *testing.T) {
	a := assert.New(t)
	s, _ := newStoreSession(t)
	writeFile(t, s, "f", "ab")

	ok, err := s.Open("f", "r")
	a.NoError(err)
	a.True(ok)

	data, ok, err := s.Read(session.ReadRequest{Delimiter: 'c'})
	a.NoError(err)
	a.True(ok)
	a.Equal("ab", string(data))

	data, ok, err = s.Read(session.ReadRequest{Delimiter: 'c'})
	a.NoError(err)
	a.False(ok)
	a.Nil(data)
}

func TestReadCount(t *testing.T) {
	a := assert.New(t)
	s, _ := newStoreSession(t)
	writeFile(t, s, "f", "0123456789")

	ok, err := s.Open("f", "r")
	a.NoError(err)
	a.True(ok)

	data, ok, err := s.Read(session.ReadRequest{Count: 3, Delimiter: session.NoDelimiter})
	a.NoError(err)
	a.True(ok)
	a.Equal("012", string(data))

	// The delimiter is only searched within the requested count
	data, ok, err = s.Read(session.ReadRequest{Count: 2, Delimiter: '9'})
	a.NoError(err)
	a.True(ok)
	a.Equal("34", string(data))

	// The position is restored to just after the delimiter
	data, ok, err = s.Read(session.ReadRequest{Count: 5, Delimiter: '6'})
	a.NoError(err)
	a.True(ok)
	a.Equal("56", string(data))

	pos, ok, err := s.Seek(session.WhenceCurrent, 0)
	a.NoError(err)
	a.True(ok)
	a.EqualValues(7, pos)

	// A zero or negative count reads a full buffer
	data, ok, err = s.Read(session.ReadRequest{Count: -1, Delimiter: session.NoDelimiter})
	a.NoError(err)
	a.True(ok)
	a.Equal("789", string(data))
}

func TestReadChunksLongLines(t *testing.T) {
	a := assert.New(t)

	store := filestore.New(filestore.Config{})
	s, err := session.New(session.Config{
		Driver:     store,
		BufferSize: 4,
		Logger:     discardLogger(),
	})
	require.NoError(t, err)

	writeFile(t, s, "f", "abcdefg\nhi\n")

	// Lines longer than the buffer are returned in buffer-sized pieces
	chunks := readAll(t, s, "f", s.ReadLine)
	a.Equal([]string{"abcd", "efg\n", "hi\n"}, chunks)

	// Counts above the buffer size are capped
	ok, err := s.Open("f", "r")
	a.NoError(err)
	a.True(ok)
	data, ok, err := s.Read(session.ReadRequest{Count: 100, Delimiter: session.NoDelimiter})
	a.NoError(err)
	a.True(ok)
	a.Equal("abcd", string(data))
}

func TestReadReturnsCopy(t *testing.T) {
	a := assert.New(t)
	s, _ := newStoreSession(t)
	writeFile(t, s, "f", strings.Repeat("a", 4)+strings.Repeat("b", 4))

	ok, err := s.Open("f", "r")
	a.NoError(err)
	a.True(ok)

	first, _, err := s.Read(session.ReadRequest{Count: 4, Delimiter: session.NoDelimiter})
	a.NoError(err)
	second, _, err := s.Read(session.ReadRequest{Count: 4, Delimiter: session.NoDelimiter})
	a.NoError(err)

	a.Equal("aaaa", string(first))
	a.Equal("bbbb", string(second))
}
