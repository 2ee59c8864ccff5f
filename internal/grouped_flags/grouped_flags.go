// Package grouped_flags provides a small wrapper around the flag package to
// allow grouping flags in the help output. Every flag can also be set using
// an environment variable, named after the flag with the configured prefix,
// for example FLASHFILE_BUFFER_SIZE for -buffer-size.
package grouped_flags

import (
	"bytes"
	"fmt"
	"io"

	"github.com/jnovack/flag"
)

type flagGroup struct {
	name  string
	flags *flag.FlagSet
}

type FlagGroupSet struct {
	groups   []flagGroup
	allFlags *flag.FlagSet
}

// NewFlagGroupSet creates an empty set for the program name. A non-empty
// envPrefix enables the environment variable fallback.
func NewFlagGroupSet(name string, envPrefix string, errorHandling flag.ErrorHandling) *FlagGroupSet {
	f := &FlagGroupSet{
		groups:   make([]flagGroup, 0),
		allFlags: flag.NewFlagSetWithEnvPrefix(name, envPrefix, errorHandling),
	}

	f.allFlags.Usage = f.Usage

	return f
}

func (f *FlagGroupSet) AddGroup(name string, constructor func(*flag.FlagSet)) {
	// Construct an empty flag set
	groupFlagSet := flag.NewFlagSet("", flag.PanicOnError)

	// Pass it to the callback, which populates it with the flags for this group
	constructor(groupFlagSet)

	// Add the flags to the combined flag set, which is used for parsing
	groupFlagSet.VisitAll(func(fl *flag.Flag) {
		f.allFlags.Var(fl.Value, fl.Name, fl.Usage)
	})

	f.groups = append(f.groups, flagGroup{
		name,
		groupFlagSet,
	})
}

// Parse parses the command line arguments, without the program name, and
// the environment.
func (f *FlagGroupSet) Parse(arguments []string) error {
	return f.allFlags.Parse(arguments)
}

// Args returns the positional arguments left after parsing.
func (f *FlagGroupSet) Args() []string {
	return f.allFlags.Args()
}

func (f *FlagGroupSet) SetOutput(output io.Writer) {
	f.allFlags.SetOutput(output)
}

func (f *FlagGroupSet) Usage() {
	output := f.allFlags.Output()

	// Print name of program
	fmt.Fprintf(output, "Usage of %s:\n\n", f.allFlags.Name())

	for _, group := range f.groups {
		// Print name of group
		fmt.Fprintf(output, "%s:\n", group.name)

		// Write flag description into buffer and then print
		buf := new(bytes.Buffer)
		group.flags.SetOutput(buf)
		group.flags.PrintDefaults()

		fmt.Fprintln(output, buf.String())
	}
}
