package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tus/flashfile/pkg/luafile"
	lua "github.com/yuin/gopher-lua"
	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"
)

// Script is a Lua chunk and the name used for it in error messages.
type Script struct {
	Name string
	Code string
}

// LoadScripts collects the chunk given by -e and the script files named on
// the command line. A file named "-" and an empty command line read stdin.
func LoadScripts(stdin io.Reader) ([]Script, error) {
	var scripts []Script

	if Flags.Execute != "" {
		scripts = append(scripts, Script{Name: "(command line)", Code: Flags.Execute})
	}

	for _, path := range Flags.Scripts {
		if path == "-" {
			script, err := readStdin(stdin)
			if err != nil {
				return nil, err
			}
			scripts = append(scripts, script)
			continue
		}

		code, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, Script{Name: path, Code: string(code)})
	}

	if len(scripts) == 0 {
		script, err := readStdin(stdin)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, script)
	}

	return scripts, nil
}

func readStdin(stdin io.Reader) (Script, error) {
	code, err := io.ReadAll(stdin)
	if err != nil {
		return Script{}, fmt.Errorf("unable to read script from stdin: %w", err)
	}
	return Script{Name: "stdin", Code: string(code)}, nil
}

// RunScripts runs every script in its own Lua state, all of them sharing the
// module's session. The first failing script cancels the others. At most
// -max-concurrent-scripts scripts run at the same time.
func RunScripts(ctx context.Context, module *luafile.Module, scripts []Script) error {
	g, ctx := errgroup.WithContext(ctx)
	if Flags.MaxConcurrentScripts > 0 {
		g.SetLimit(Flags.MaxConcurrentScripts)
	}

	for _, script := range scripts {
		script := script
		g.Go(func() error {
			return runScript(ctx, module, script)
		})
	}

	return g.Wait()
}

func runScript(ctx context.Context, module *luafile.Module, script Script) error {
	L := lua.NewState()
	defer L.Close()

	L.SetContext(ctx)
	module.Open(L)

	MetricsScriptsRunning.Inc()
	defer MetricsScriptsRunning.Dec()

	start := time.Now()
	slog.Debug("ScriptStarted", "script", script.Name)

	fn, err := L.Load(strings.NewReader(script.Code), script.Name)
	if err == nil {
		L.Push(fn)
		err = L.PCall(0, lua.MultRet, nil)
	}
	if err != nil {
		MetricsScriptErrors.Inc()
		slog.Error("ScriptFailed", "script", script.Name, "error", err, "duration", time.Since(start))
		return fmt.Errorf("%s: %w", script.Name, err)
	}

	slog.Info("ScriptFinished", "script", script.Name, "duration", time.Since(start))
	return nil
}

// Run sets up the session according to Flags and runs the scripts. The open
// file is closed and the image released before Run returns.
func Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if Flags.ScriptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, Flags.ScriptTimeout)
		defer cancel()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	scripts, err := LoadScripts(os.Stdin)
	if err != nil {
		slog.Error("LoadScriptsFailed", "error", err)
		return err
	}

	composer, err := CreateComposer(ctx, cancel)
	if err != nil {
		slog.Error("SetupFailed", "error", err)
		return err
	}
	defer composer.Close()

	if Flags.ExposeMetrics {
		stopMetrics, err := SetupMetrics(composer.Session)
		if err != nil {
			slog.Error("MetricsSetupFailed", "error", err)
			return err
		}
		defer stopMetrics()
	}

	return RunScripts(ctx, composer.Module, scripts)
}
