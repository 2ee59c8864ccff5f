// Package luafile exposes a session.Session to Lua scripts as the "file"
// module.
//
// The module mirrors the NodeMCU file API:
//
//	file.open(name [, mode])        -> true | nil
//	file.close()
//	file.read([count | delimiter])  -> string | nil
//	file.readline()                 -> string | nil
//	file.write(data)                -> true | nil
//	file.writeline(data)            -> true | nil
//	file.seek([whence [, offset]])  -> position | nil
//	file.flush()                    -> true | nil
//	file.format()
//	file.list()                     -> {name = size, ...}
//	file.remove(name)
//	file.rename(old, new)           -> boolean
//	file.exists(name)               -> boolean
//	file.fsinfo()                   -> free, used, total
//	file.fscfg()                    -> address, size
//
// Invalid arguments and session errors are raised as Lua errors. Soft
// failures of the flash driver are reported as nil results.
//
// Several Lua states may share one session if a Locker is configured. Every
// call then holds the session lock for its whole duration.
package luafile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tus/flashfile/pkg/session"
	lua "github.com/yuin/gopher-lua"
	"golang.org/x/exp/slog"
)

// ModuleName is the name under which the module is installed.
const ModuleName = "file"

// LockID is the resource id used for the session lock.
const LockID = "session"

// DefaultAcquireLockTimeout bounds the time a call waits for the session lock.
const DefaultAcquireLockTimeout = 20 * time.Second

// Config provides a way to configure the Module depending on your needs.
type Config struct {
	// Session receives all calls. It must not be nil.
	Session *session.Session
	// Locker, if set, is used to serialise calls on Session across Lua states.
	Locker session.Locker
	// AcquireLockTimeout is the maximum time a call waits for the session
	// lock. Defaults to DefaultAcquireLockTimeout.
	AcquireLockTimeout time.Duration
	// Logger is the logger to use internally. Defaults to slog.Default().
	Logger *slog.Logger
}

func (config *Config) validate() error {
	if config.Session == nil {
		return errors.New("luafile: Session must not be nil")
	}

	if config.AcquireLockTimeout <= 0 {
		config.AcquireLockTimeout = DefaultAcquireLockTimeout
	}

	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return nil
}

// Module binds a session to Lua states. One Module may be opened in any
// number of states.
type Module struct {
	config  Config
	session *session.Session
	logger  *slog.Logger
}

// New creates a module for config.Session.
func New(config Config) (*Module, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	return &Module{
		config:  config,
		session: config.Session,
		logger:  config.Logger,
	}, nil
}

// Loader is a lua.LGFunction which returns the module table. Use it with
// L.PreloadModule(luafile.ModuleName, module.Loader) to make the module
// available through require.
func (m *Module) Loader(L *lua.LState) int {
	L.Push(m.table(L))
	return 1
}

// Open installs the module table as the global "file" in L.
func (m *Module) Open(L *lua.LState) {
	L.SetGlobal(ModuleName, m.table(L))
}

func (m *Module) table(L *lua.LState) *lua.LTable {
	exports := map[string]lua.LGFunction{
		"open":      m.open,
		"close":     m.close,
		"read":      m.read,
		"readline":  m.readline,
		"write":     m.write,
		"writeline": m.writeline,
		"seek":      m.seek,
		"flush":     m.flush,
		"format":    m.format,
		"list":      m.list,
		"remove":    m.remove,
		"rename":    m.rename,
		"exists":    m.exists,
		"fsinfo":    m.fsinfo,
		"fscfg":     m.fscfg,
	}

	for name, fn := range exports {
		exports[name] = m.locked(name, fn)
	}

	return L.SetFuncs(L.NewTable(), exports)
}

// locked wraps fn so that it runs while holding the session lock, if a
// locker is configured. The lock is released even if fn raises an error.
func (m *Module) locked(name string, fn lua.LGFunction) lua.LGFunction {
	if m.config.Locker == nil {
		return fn
	}

	return func(L *lua.LState) int {
		lock, err := m.config.Locker.NewLock(LockID)
		if err != nil {
			m.logger.Error("LockCreationFailed", "function", name, "error", err)
			L.RaiseError("%s", err.Error())
			return 0
		}

		parent := L.Context()
		if parent == nil {
			parent = context.Background()
		}
		ctx, cancel := context.WithTimeout(parent, m.config.AcquireLockTimeout)
		defer cancel()

		if err := lock.Lock(ctx, nil); err != nil {
			m.logger.Warn("LockTimeout", "function", name, "timeout", m.config.AcquireLockTimeout)
			raise(L, err)
			return 0
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				m.logger.Error("UnlockFailed", "function", name, "error", err)
			}
		}()

		return fn(L)
	}
}

// raise converts err into a Lua error. It does not return.
func raise(L *lua.LState, err error) {
	var serr session.Error
	if errors.As(err, &serr) {
		L.RaiseError("%s", serr.Message)
		return
	}
	L.RaiseError("%s", err.Error())
}

// checkName returns the file name at argument n. It raises an argument
// error if the name is not acceptable to the session.
func (m *Module) checkName(L *lua.LState, n int) string {
	name := L.CheckString(n)
	if err := m.session.CheckName(name); err != nil {
		var serr session.Error
		if errors.As(err, &serr) {
			L.ArgError(n, serr.Message)
		}
		L.ArgError(n, err.Error())
	}
	return name
}

// pushOK pushes true for a successful operation and nil otherwise.
func pushOK(L *lua.LState, ok bool) int {
	if ok {
		L.Push(lua.LTrue)
	} else {
		L.Push(lua.LNil)
	}
	return 1
}

// Lua: open(name [, mode])
func (m *Module) open(L *lua.LState) int {
	name := m.checkName(L, 1)
	mode := L.OptString(2, "r")

	ok, err := m.session.Open(name, mode)
	if err != nil {
		raise(L, err)
	}
	return pushOK(L, ok)
}

// Lua: close()
func (m *Module) close(L *lua.LState) int {
	m.session.Close()
	return 0
}

// Lua: read([count | delimiter])
//
// A number limits the count of bytes, a single-character string reads up to
// and including that character. Without an argument a full buffer is read.
func (m *Module) read(L *lua.LState) int {
	req := session.ReadRequest{Delimiter: session.NoDelimiter}

	switch arg := L.Get(1); arg.Type() {
	case lua.LTNumber:
		req.Count = L.CheckInt(1)
	case lua.LTString:
		end := string(arg.(lua.LString))
		if len(end) != 1 {
			L.RaiseError("wrong arg range")
			return 0
		}
		req.Delimiter = int(end[0])
	}

	data, ok, err := m.session.Read(req)
	return pushData(L, data, ok, err)
}

// Lua: readline()
func (m *Module) readline(L *lua.LState) int {
	data, ok, err := m.session.ReadLine()
	return pushData(L, data, ok, err)
}

func pushData(L *lua.LState, data []byte, ok bool, err error) int {
	if err != nil {
		raise(L, err)
	}
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(data))
	return 1
}

// Lua: write(data)
func (m *Module) write(L *lua.LState) int {
	data := L.CheckString(1)

	ok, err := m.session.Write([]byte(data))
	if err != nil {
		raise(L, err)
	}
	return pushOK(L, ok)
}

// Lua: writeline(data)
func (m *Module) writeline(L *lua.LState) int {
	data := L.CheckString(1)

	ok, err := m.session.WriteLine([]byte(data))
	if err != nil {
		raise(L, err)
	}
	return pushOK(L, ok)
}

// Lua: seek([whence [, offset]])
func (m *Module) seek(L *lua.LState) int {
	option := L.OptString(1, "cur")
	whence, valid := session.ParseWhence(option)
	if !valid {
		L.ArgError(1, fmt.Sprintf("invalid option '%s'", option))
	}
	offset := L.OptInt64(2, 0)

	pos, ok, err := m.session.Seek(whence, offset)
	if err != nil {
		raise(L, err)
	}
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LNumber(pos))
	return 1
}

// Lua: flush()
func (m *Module) flush(L *lua.LState) int {
	ok, err := m.session.Flush()
	if err != nil {
		raise(L, err)
	}
	return pushOK(L, ok)
}

// Lua: format()
func (m *Module) format(L *lua.LState) int {
	if err := m.session.Format(); err != nil {
		raise(L, err)
	}
	return 0
}

// Lua: list()
func (m *Module) list(L *lua.LState) int {
	files, err := m.session.List()
	if err != nil {
		raise(L, err)
	}

	tbl := L.CreateTable(0, len(files))
	for name, size := range files {
		tbl.RawSetString(name, lua.LNumber(size))
	}
	L.Push(tbl)
	return 1
}

// Lua: remove(name)
func (m *Module) remove(L *lua.LState) int {
	name := m.checkName(L, 1)

	if err := m.session.Remove(name); err != nil {
		raise(L, err)
	}
	return 0
}

// Lua: rename(old, new)
func (m *Module) rename(L *lua.LState) int {
	oldName := m.checkName(L, 1)
	newName := m.checkName(L, 2)

	ok, err := m.session.Rename(oldName, newName)
	if err != nil {
		raise(L, err)
	}
	L.Push(lua.LBool(ok))
	return 1
}

// Lua: exists(name)
func (m *Module) exists(L *lua.LState) int {
	name := m.checkName(L, 1)

	ok, err := m.session.Exists(name)
	if err != nil {
		raise(L, err)
	}
	L.Push(lua.LBool(ok))
	return 1
}

// Lua: fsinfo()
func (m *Module) fsinfo(L *lua.LState) int {
	info, err := m.session.FSInfo()
	if err != nil {
		raise(L, err)
	}

	L.Push(lua.LNumber(info.Free))
	L.Push(lua.LNumber(info.Used))
	L.Push(lua.LNumber(info.Total))
	return 3
}

// Lua: fscfg()
func (m *Module) fscfg(L *lua.LState) int {
	config := m.session.FSConfig()

	L.Push(lua.LNumber(config.BaseAddress))
	L.Push(lua.LNumber(config.Size))
	return 2
}
