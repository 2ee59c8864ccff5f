package session

import (
	"errors"
	"io"
)

// NoDelimiter disables the delimiter scan of a ReadRequest, so that a read
// only stops at the byte count or at the end of the file.
const NoDelimiter = -1

// ReadRequest bounds a single Read. Count values outside 1..BufferSize select
// the buffer size. Delimiter values outside 0..255 select NoDelimiter.
type ReadRequest struct {
	Count     int
	Delimiter int
}

func (r ReadRequest) normalize(bufferSize int) ReadRequest {
	if r.Count <= 0 || r.Count > bufferSize {
		r.Count = bufferSize
	}
	if r.Delimiter < 0 || r.Delimiter > 255 {
		r.Delimiter = NoDelimiter
	}
	return r
}

// Read performs one bounded driver read into the scratch buffer and returns
// the bytes up to and including the first occurrence of the delimiter. The
// file position is moved back to just after the delimiter. Without a
// delimiter in the chunk, the whole chunk is returned. A delimiter spanning
// two chunks is not detected.
//
// ok is false if nothing could be read, which callers must distinguish from
// an empty result.
func (s *Session) Read(req ReadRequest) (data []byte, ok bool, err error) {
	s.Metrics.incOperationsTotal(OpRead)
	return s.read(req)
}

// ReadLine reads up to and including the next newline, or up to the buffer
// size if no newline follows within it.
func (s *Session) ReadLine() ([]byte, bool, error) {
	s.Metrics.incOperationsTotal(OpReadLine)
	return s.read(ReadRequest{Count: s.config.BufferSize, Delimiter: '\n'})
}

func (s *Session) read(req ReadRequest) ([]byte, bool, error) {
	if s.file == nil {
		return nil, false, s.fail(ErrNoFileOpen)
	}

	req = req.normalize(s.config.BufferSize)
	chunk := s.buf[:req.Count]

	n, err := s.driver.Read(s.file.fd, chunk)
	if err != nil && !errors.Is(err, io.EOF) {
		s.logger.Debug("FileReadFailed", "name", s.file.name, "error", err)
	}
	if n <= 0 {
		return nil, false, nil
	}
	if n > len(chunk) {
		n = len(chunk)
	}

	length := n
	if req.Delimiter != NoDelimiter {
		for i := 0; i < n; i++ {
			if chunk[i] == byte(req.Delimiter) {
				length = i + 1
				break
			}
		}
	}

	if rest := n - length; rest > 0 {
		if _, err := s.driver.Seek(s.file.fd, -int64(rest), io.SeekCurrent); err != nil {
			s.logger.Debug("FileRewindFailed", "name", s.file.name, "bytes", rest, "error", err)
		}
	}

	data := make([]byte, length)
	copy(data, chunk[:length])
	s.Metrics.incBytesRead(uint64(length))

	return data, true, nil
}
