package session

import (
	"sync"
	"sync/atomic"
)

// Operation names used as keys of Metrics.OperationsTotal.
const (
	OpOpen      = "open"
	OpClose     = "close"
	OpRead      = "read"
	OpWrite     = "write"
	OpSeek      = "seek"
	OpFlush     = "flush"
	OpFormat    = "format"
	OpRemove    = "remove"
	OpRename    = "rename"
	OpList      = "list"
	OpExists    = "exists"
	OpFSInfo    = "fsinfo"
	OpFSConfig  = "fscfg"
	OpReadLine  = "readline"
	OpWriteLine = "writeline"
)

// Metrics provides numbers about the usage of a Session. Since these may be
// read from other goroutines, for example by a Prometheus collector, they
// are modified atomically and must be read using the functions exposed in
// the sync/atomic package, such as atomic.LoadUint64. The maps must not be
// modified to prevent data races.
type Metrics struct {
	// OperationsTotal counts the invocations per operation.
	OperationsTotal map[string]*uint64
	// ErrorsTotal counts the returned errors by their code.
	ErrorsTotal *ErrorsTotalMap
	// SoftFailures counts driver failures reported as absent results.
	SoftFailures *uint64
	// BytesRead counts the bytes returned by Read and ReadLine.
	BytesRead *uint64
	// BytesWritten counts the bytes accepted by the driver.
	BytesWritten *uint64
	// FileOpen is 1 while the session holds an open handle, else 0.
	FileOpen *uint64
}

func (m Metrics) incOperationsTotal(op string) {
	if ptr, ok := m.OperationsTotal[op]; ok {
		atomic.AddUint64(ptr, 1)
	}
}

func (m Metrics) incErrorsTotal(err Error) {
	ptr := m.ErrorsTotal.retrievePointerFor(err)
	atomic.AddUint64(ptr, 1)
}

func (m Metrics) incSoftFailures() {
	atomic.AddUint64(m.SoftFailures, 1)
}

func (m Metrics) incBytesRead(delta uint64) {
	atomic.AddUint64(m.BytesRead, delta)
}

func (m Metrics) incBytesWritten(delta uint64) {
	atomic.AddUint64(m.BytesWritten, delta)
}

func (m Metrics) setFileOpen(open bool) {
	var v uint64
	if open {
		v = 1
	}
	atomic.StoreUint64(m.FileOpen, v)
}

func newMetrics() Metrics {
	ops := map[string]*uint64{}
	for _, op := range []string{
		OpOpen, OpClose, OpRead, OpReadLine, OpWrite, OpWriteLine, OpSeek, OpFlush,
		OpFormat, OpRemove, OpRename, OpList, OpExists, OpFSInfo, OpFSConfig,
	} {
		ops[op] = new(uint64)
	}

	return Metrics{
		OperationsTotal: ops,
		ErrorsTotal:     newErrorsTotalMap(),
		SoftFailures:    new(uint64),
		BytesRead:       new(uint64),
		BytesWritten:    new(uint64),
		FileOpen:        new(uint64),
	}
}

// ErrorsTotalMap stores the counter for the different errors.
type ErrorsTotalMap struct {
	lock    sync.RWMutex
	counter map[Error]*uint64
}

func newErrorsTotalMap() *ErrorsTotalMap {
	m := make(map[Error]*uint64, 8)
	return &ErrorsTotalMap{
		counter: m,
	}
}

// retrievePointerFor returns (after creating it if necessary) the pointer to
// the counter for the error.
func (e *ErrorsTotalMap) retrievePointerFor(err Error) *uint64 {
	e.lock.RLock()
	ptr, ok := e.counter[err]
	e.lock.RUnlock()
	if ok {
		return ptr
	}

	// For pointer creation, a write-lock is required
	e.lock.Lock()
	// We ensure that the pointer wasn't created in the meantime
	if ptr, ok = e.counter[err]; !ok {
		ptr = new(uint64)
		e.counter[err] = ptr
	}
	e.lock.Unlock()

	return ptr
}

// Load retrieves the map of the counter pointers atomically
func (e *ErrorsTotalMap) Load() map[Error]*uint64 {
	m := make(map[Error]*uint64, len(e.counter))
	e.lock.RLock()
	for err, ptr := range e.counter {
		m[err] = ptr
	}
	e.lock.RUnlock()

	return m
}
