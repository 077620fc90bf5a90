package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/joshuapare/fusekit/fuse/journal"
	"github.com/joshuapare/fusekit/fuse/sim"
	"github.com/joshuapare/fusekit/pkg/definition"
	"github.com/joshuapare/fusekit/pkg/fusekit"
)

// target holds the flags that select a definition and a device image.
type target struct {
	defPath     string
	imagePath   string
	journalPath string
	encoding    string
	attempts    int
}

// AddFlags registers the target flags on flagSet.
func (t *target) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVarP(&t.defPath, "definition", "d", "", "Fuse definition file (YAML)")
	flagSet.StringVarP(&t.imagePath, "image", "i", "", "Device image file, created if missing")
	flagSet.StringVar(&t.journalPath, "journal", "", "Append commits to this journal file")
	flagSet.StringVar(&t.encoding, "encoding", "utf-8", "Definition file encoding (utf-8, windows-1252, iso-8859-1)")
	flagSet.IntVar(&t.attempts, "attempts", 0, "Commit attempts (0 uses the geometry's value)")
}

func parseEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(name) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	case "iso-8859-1", "latin1":
		return charmap.ISO8859_1, nil
	default:
		return nil, fmt.Errorf("unknown encoding %q", name)
	}
}

func (t *target) loadDefinition() (*definition.Definition, error) {
	if t.defPath == "" {
		return nil, fmt.Errorf("--definition is required")
	}
	enc, err := parseEncoding(t.encoding)
	if err != nil {
		return nil, err
	}
	var opts []definition.Option
	if enc != nil {
		opts = append(opts, definition.WithEncoding(enc))
	}
	printVerbose("Loading definition: %s\n", t.defPath)
	return definition.Load(t.defPath, opts...)
}

// open loads the definition, maps the device image and starts a session.
// The returned function releases everything.
func (t *target) open() (*fusekit.Session, func(), error) {
	def, err := t.loadDefinition()
	if err != nil {
		return nil, nil, err
	}
	if t.imagePath == "" {
		return nil, nil, fmt.Errorf("--image is required")
	}

	printVerbose("Opening image: %s (%d rows)\n", t.imagePath, def.Geometry.Rows)
	dev, err := sim.OpenFile(t.imagePath, def.Geometry.Rows)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open image: %w", err)
	}
	closers := []func() error{dev.Close}

	opts := []fusekit.Option{
		fusekit.WithLogger(newLogger()),
		fusekit.WithAttempts(t.attempts),
	}
	if t.journalPath != "" {
		j, err := journal.Open(t.journalPath)
		if err != nil {
			dev.Close()
			return nil, nil, fmt.Errorf("failed to open journal: %w", err)
		}
		closers = append(closers, j.Close)
		opts = append(opts, fusekit.WithJournal(j))
	}

	s, err := fusekit.Open(dev, def, opts...)
	if err != nil {
		for _, c := range closers {
			c()
		}
		return nil, nil, err
	}
	release := func() {
		s.Close()
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				printError("%v\n", err)
			}
		}
	}
	return s, release, nil
}

// uint64Value is a pflag.Value accepting decimal, 0x hex or 0b binary.
type uint64Value uint64

func (v *uint64Value) String() string { return fmt.Sprintf("0x%X", uint64(*v)) }

func (v *uint64Value) Set(s string) error {
	n, err := parseUint(s)
	if err != nil {
		return err
	}
	*v = uint64Value(n)
	return nil
}

func (v *uint64Value) Type() string { return "uint64" }

func parseUint(s string) (uint64, error) {
	n, err := strconv.ParseUint(strings.ReplaceAll(s, "_", ""), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q: %w", s, err)
	}
	return n, nil
}
