package cli

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jnovack/flag"
	"github.com/tus/flashfile/internal/grouped_flags"
	"github.com/tus/flashfile/pkg/filestore"
	"github.com/tus/flashfile/pkg/luafile"
	"github.com/tus/flashfile/pkg/session"
	"golang.org/x/exp/slices"
)

// EnvPrefix is the prefix of the environment variables which can be used
// instead of flags.
const EnvPrefix = "FLASHFILE"

var logFormats = []string{"text", "json"}

var Flags struct {
	ImageDir                     string
	BaseAddressString            string
	BaseAddress                  uint32
	Size                         uint
	PageSize                     uint
	MaxOpenFiles                 int
	FilelockHolderPollInterval   time.Duration
	FilelockAcquirerPollInterval time.Duration
	BufferSize                   int
	NameMaxLength                int
	AcquireLockTimeout           time.Duration
	Execute                      string
	ScriptTimeout                time.Duration
	MaxConcurrentScripts         int
	Scripts                      []string
	ExposeMetrics                bool
	MetricsHost                  string
	MetricsPort                  string
	MetricsPath                  string
	ShowVersion                  bool
	VerboseOutput                bool
	LogFormat                    string
}

func ParseFlags() {
	fs := grouped_flags.NewFlagGroupSet(filepath.Base(os.Args[0]), EnvPrefix, flag.ExitOnError)

	fs.AddGroup("Flash storage options", func(f *flag.FlagSet) {
		f.StringVar(&Flags.ImageDir, "dir", "", "Directory holding the flash image. If empty, an in-memory image is used which is discarded on exit")
		f.StringVar(&Flags.BaseAddressString, "base-address", "0x"+strconv.FormatUint(filestore.DefaultBaseAddress, 16), "Physical address of the file system region reported by file.fscfg (decimal, 0x hex or 0 octal)")
		f.UintVar(&Flags.Size, "size", filestore.DefaultSize, "Size of the file system region in bytes")
		f.UintVar(&Flags.PageSize, "page-size", filestore.DefaultPageSize, "Allocation unit in bytes. Every file occupies a multiple of it")
		f.IntVar(&Flags.MaxOpenFiles, "max-open-files", filestore.DefaultMaxOpenFiles, "Number of descriptors the flash driver can hand out at the same time")
		f.DurationVar(&Flags.FilelockHolderPollInterval, "filelock-holder-poll-interval", 5*time.Second, "The holder of the image lock polls regularly to see if another process needs the image. This flag specifies the poll interval.")
		f.DurationVar(&Flags.FilelockAcquirerPollInterval, "filelock-acquirer-poll-interval", 2*time.Second, "The acquirer of the image lock polls regularly to see if the lock has been released. This flag specifies the poll interval.")
	})

	fs.AddGroup("Session options", func(f *flag.FlagSet) {
		f.IntVar(&Flags.BufferSize, "buffer-size", session.DefaultBufferSize, "Maximum number of bytes returned by a single file.read")
		f.IntVar(&Flags.NameMaxLength, "name-max-length", session.DefaultMaxNameLength, "File names must be shorter than this number of bytes")
		f.DurationVar(&Flags.AcquireLockTimeout, "acquire-lock-timeout", luafile.DefaultAcquireLockTimeout, "Timeout for a script to wait for the session or the image lock")
	})

	fs.AddGroup("Script options", func(f *flag.FlagSet) {
		f.StringVar(&Flags.Execute, "e", "", "Lua chunk to run before the script files")
		f.DurationVar(&Flags.ScriptTimeout, "script-timeout", 0, "Stop all scripts after this duration. A zero value disables the timeout")
		f.IntVar(&Flags.MaxConcurrentScripts, "max-concurrent-scripts", 0, "Number of scripts running at the same time. A zero value runs all scripts at once")
	})

	fs.AddGroup("Monitoring, logging options", func(f *flag.FlagSet) {
		f.BoolVar(&Flags.ExposeMetrics, "expose-metrics", false, "Expose metrics about the file session over HTTP while scripts are running")
		f.StringVar(&Flags.MetricsHost, "metrics-host", "127.0.0.1", "Host to bind the metrics HTTP server to")
		f.StringVar(&Flags.MetricsPort, "metrics-port", "9100", "Port to bind the metrics HTTP server to")
		f.StringVar(&Flags.MetricsPath, "metrics-path", "/metrics", "Path under which the metrics endpoint will be accessible")
		f.BoolVar(&Flags.ShowVersion, "version", false, "Print flashfile version information")
		f.BoolVar(&Flags.VerboseOutput, "verbose", false, "Enable verbose logging output")
		f.StringVar(&Flags.LogFormat, "log-format", "text", "Logging format (text or json)")
	})

	fs.Parse(os.Args[1:])

	Flags.Scripts = fs.Args()

	if !slices.Contains(logFormats, Flags.LogFormat) {
		stderr.Fatalf("Unknown log format in -log-format flag: %s", Flags.LogFormat)
	}

	address, err := strconv.ParseUint(Flags.BaseAddressString, 0, 32)
	if err != nil {
		stderr.Fatalf("Invalid -base-address flag: %s", err)
	}
	Flags.BaseAddress = uint32(address)

	if Flags.Size == 0 || Flags.Size > 1<<31-1 {
		stderr.Fatalf("The -size flag must be between 1 and %d", 1<<31-1)
	}

	if Flags.ImageDir != "" {
		Flags.ImageDir, _ = filepath.Abs(Flags.ImageDir)
	}

	SetupStructuredLogger()
}
