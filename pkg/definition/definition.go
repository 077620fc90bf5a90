package definition

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
	"gopkg.in/yaml.v3"

	"github.com/joshuapare/fusekit/fuse"
	"github.com/joshuapare/fusekit/fuse/patch"
	"github.com/joshuapare/fusekit/internal/bitcursor"
)

// Fuse is a named logical fuse.
type Fuse struct {
	Name     string
	Locators []fuse.Locator
}

// Width returns the fuse's logical width in bits.
func (f Fuse) Width() int { return fuse.Width(f.Locators) }

// Assignment sets one fuse to a value.
type Assignment struct {
	Fuse  *Fuse
	Value uint64
}

// Profile is a named set of fuse values plus boot instructions.
type Profile struct {
	Name string

	// Values is sorted by fuse name.
	Values []Assignment

	// Patches is the desired boot instruction stream, in execution order.
	Patches []patch.Instruction
}

// Definition is a validated definition file.
type Definition struct {
	Geometry fuse.Geometry
	Fuses    []*Fuse
	Profiles []*Profile

	fuses    map[string]*Fuse
	profiles map[string]*Profile
}

type config struct {
	enc encoding.Encoding
}

// Option configures Load and Parse.
type Option func(*config)

// WithEncoding decodes the file from enc before parsing, for example
// charmap.Windows1252 for files exported by older tools.
func WithEncoding(enc encoding.Encoding) Option {
	return func(c *config) { c.enc = enc }
}

// Load reads and parses the definition file at path.
func Load(path string, opts ...Option) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}
	def, err := Parse(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// Parse parses and validates a definition document.
func Parse(data []byte, opts ...Option) (*Definition, error) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.enc != nil {
		decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), cfg.enc.NewDecoder()))
		if err != nil {
			return nil, fmt.Errorf("decode definition: %w", err)
		}
		data = decoded
	}

	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: parse definition: %v", fuse.ErrBadParameter, err)
	}
	return Build(f)
}

// Build validates a decoded File.
func Build(f File) (*Definition, error) {
	g, err := buildGeometry(f.Geometry)
	if err != nil {
		return nil, err
	}

	d := &Definition{
		Geometry: g,
		fuses:    make(map[string]*Fuse),
		profiles: make(map[string]*Profile),
	}

	for i, fs := range f.Fuses {
		path := fmt.Sprintf("fuses[%d]", i)
		fz, err := d.buildFuse(path, fs)
		if err != nil {
			return nil, err
		}
		key := d.key(fz.Name)
		if _, dup := d.fuses[key]; dup {
			return nil, &FieldError{Path: path + ".name", Err: fmt.Errorf("%w: %q", ErrDuplicateName, fz.Name)}
		}
		d.fuses[key] = fz
		d.Fuses = append(d.Fuses, fz)
	}

	for i, ps := range f.Profiles {
		path := fmt.Sprintf("profiles[%d]", i)
		p, err := d.buildProfile(path, ps)
		if err != nil {
			return nil, err
		}
		key := d.key(p.Name)
		if _, dup := d.profiles[key]; dup {
			return nil, &FieldError{Path: path + ".name", Err: fmt.Errorf("%w: %q", ErrDuplicateName, p.Name)}
		}
		d.profiles[key] = p
		d.Profiles = append(d.Profiles, p)
	}
	return d, nil
}

// key folds name for lookup. A Caser carries state, so each call gets its own.
func (d *Definition) key(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// Fuse returns the fuse called name, ignoring case.
func (d *Definition) Fuse(name string) (*Fuse, error) {
	if f, ok := d.fuses[d.key(name)]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("%w: fuse %q", ErrUnknownName, name)
}

// Profile returns the profile called name, ignoring case.
func (d *Definition) Profile(name string) (*Profile, error) {
	if p, ok := d.profiles[d.key(name)]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: profile %q", ErrUnknownName, name)
}

func buildGeometry(gs GeometrySpec) (fuse.Geometry, error) {
	variant, err := fuse.ParseVariant(gs.Variant)
	if err != nil {
		return fuse.Geometry{}, &FieldError{Path: "geometry.variant", Err: err}
	}
	timing := fuse.Timing{Attempts: gs.Timing.Attempts}
	for _, d := range []struct {
		name string
		src  string
		dst  *time.Duration
	}{
		{"poll_timeout", gs.Timing.PollTimeout, &timing.PollTimeout},
		{"poll_interval", gs.Timing.PollInterval, &timing.PollInterval},
		{"settle_delay", gs.Timing.SettleDelay, &timing.SettleDelay},
	} {
		if d.src == "" {
			continue
		}
		v, err := time.ParseDuration(d.src)
		if err != nil {
			return fuse.Geometry{}, &FieldError{Path: "geometry.timing." + d.name,
				Err: fmt.Errorf("%w: %v", fuse.ErrBadParameter, err)}
		}
		*d.dst = v
	}

	g := fuse.Geometry{
		Name:         gs.Name,
		Variant:      variant,
		Rows:         gs.Rows,
		RegionStart:  gs.Region.Start,
		RegionEnd:    gs.Region.End,
		ChainIDWidth: gs.Fields.ChainID,
		TypeWidth:    gs.Fields.Type,
		AddressWidth: gs.Fields.Address,
		DataWidth:    gs.Fields.Data,
		PatchRows:    gs.PatchRows,
		Repair: fuse.RepairTable{
			Start:      gs.Repair.Start,
			Entries:    gs.Repair.Entries,
			SealedRows: slices.Clone(gs.Repair.SealedRows),
		},
		Timing: timing,
	}
	if err := g.Validate(); err != nil {
		return fuse.Geometry{}, &FieldError{Path: "geometry", Err: err}
	}
	return g, nil
}

func (d *Definition) buildFuse(path string, fs FuseSpec) (*Fuse, error) {
	if strings.TrimSpace(fs.Name) == "" {
		return nil, &FieldError{Path: path + ".name", Err: fmt.Errorf("%w: empty name", fuse.ErrBadParameter)}
	}
	if len(fs.Locators) == 0 {
		return nil, &FieldError{Path: path + ".locators", Err: fmt.Errorf("%w: fuse %q has no locators", fuse.ErrBadParameter, fs.Name)}
	}
	f := &Fuse{Name: strings.TrimSpace(fs.Name)}
	for i, ls := range fs.Locators {
		lpath := fmt.Sprintf("%s.locators[%d]", path, i)
		loc, err := buildLocator(ls)
		if err != nil {
			return nil, &FieldError{Path: lpath, Err: err}
		}
		if err := loc.Validate(d.Geometry); err != nil {
			return nil, &FieldError{Path: lpath, Err: err}
		}
		f.Locators = append(f.Locators, loc)
	}
	if f.Width() > 64 {
		return nil, &FieldError{Path: path, Err: fmt.Errorf("%w: fuse %q is %d bits wide", fuse.ErrBadParameter, f.Name, f.Width())}
	}
	return f, nil
}

func buildLocator(ls LocatorSpec) (fuse.Locator, error) {
	r, err := buildRange(ls.RangeSpec)
	if err != nil {
		return fuse.Locator{}, err
	}
	pol, err := fuse.ParsePolarity(ls.Polarity)
	if err != nil {
		return fuse.Locator{}, err
	}
	loc := fuse.Locator{Range: r, Polarity: pol}
	if ls.Undo != nil {
		u, err := buildRange(*ls.Undo)
		if err != nil {
			return fuse.Locator{}, fmt.Errorf("undo: %w", err)
		}
		loc.Undo = &u
	}
	if ls.Redundant != nil {
		red, err := buildRange(*ls.Redundant)
		if err != nil {
			return fuse.Locator{}, fmt.Errorf("redundant: %w", err)
		}
		loc.Redundant = &red
	}
	for _, c := range []*fuse.Range{loc.Undo, loc.Redundant} {
		if c != nil && c.Kind != r.Kind {
			return fuse.Locator{}, fmt.Errorf("%w: %s paired with %s", fuse.ErrBadParameter, c, r)
		}
	}
	return loc, nil
}

func buildRange(rs RangeSpec) (fuse.Range, error) {
	var r fuse.Range
	switch {
	case rs.Chain != nil && rs.Row != nil:
		return r, fmt.Errorf("%w: both chain and row given", fuse.ErrBadParameter)
	case rs.Chain != nil:
		r.Kind, r.Chain = fuse.KindChain, *rs.Chain
	case rs.Row != nil:
		r.Kind, r.Row = fuse.KindRow, *rs.Row
	default:
		return r, fmt.Errorf("%w: locator needs a chain or a row", fuse.ErrBadParameter)
	}
	msb, lsb, err := ParseBits(rs.Bits)
	if err != nil {
		return r, err
	}
	r.MSB, r.LSB = msb, lsb
	return r, nil
}

// ParseBits parses "msb:lsb" or a single bit index.
func ParseBits(s string) (msb, lsb int, err error) {
	hi, lo, found := strings.Cut(strings.TrimSpace(s), ":")
	if msb, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
		return 0, 0, fmt.Errorf("%w: bits %q", fuse.ErrBadParameter, s)
	}
	lsb = msb
	if found {
		if lsb, err = strconv.Atoi(strings.TrimSpace(lo)); err != nil {
			return 0, 0, fmt.Errorf("%w: bits %q", fuse.ErrBadParameter, s)
		}
	}
	if lsb < 0 || msb < lsb {
		return 0, 0, fmt.Errorf("%w: bits %q", fuse.ErrBadParameter, s)
	}
	return msb, lsb, nil
}

func (d *Definition) buildProfile(path string, ps ProfileSpec) (*Profile, error) {
	if strings.TrimSpace(ps.Name) == "" {
		return nil, &FieldError{Path: path + ".name", Err: fmt.Errorf("%w: empty name", fuse.ErrBadParameter)}
	}
	p := &Profile{Name: strings.TrimSpace(ps.Name)}
	seen := make(map[*Fuse]bool)
	for name, value := range ps.Fuses {
		fpath := path + ".fuses." + name
		f, err := d.Fuse(name)
		if err != nil {
			return nil, &FieldError{Path: fpath, Err: err}
		}
		if seen[f] {
			return nil, &FieldError{Path: fpath, Err: fmt.Errorf("%w: fuse %q", ErrDuplicateName, f.Name)}
		}
		seen[f] = true
		if w := f.Width(); w < 64 && value&^bitcursor.Mask(w) != 0 {
			return nil, &FieldError{Path: fpath,
				Err: fmt.Errorf("%w: value 0x%X wider than %d bits", fuse.ErrOutOfRange, value, w)}
		}
		p.Values = append(p.Values, Assignment{Fuse: f, Value: value})
	}
	slices.SortFunc(p.Values, func(a, b Assignment) int { return strings.Compare(a.Fuse.Name, b.Fuse.Name) })

	if len(ps.Patches) > 0 && !d.Geometry.PatchSupported() {
		return nil, &FieldError{Path: path + ".patches",
			Err: fmt.Errorf("%w: geometry %q has no patch tail", fuse.ErrUnsupportedOperation, d.Geometry.Name)}
	}
	for i, pp := range ps.Patches {
		in, err := buildInstruction(pp)
		if err != nil {
			return nil, &FieldError{Path: fmt.Sprintf("%s.patches[%d]", path, i), Err: err}
		}
		p.Patches = append(p.Patches, in)
	}
	return p, nil
}

func buildInstruction(ps PatchSpec) (patch.Instruction, error) {
	op, err := patch.ParseOpcode(ps.Op)
	if err != nil {
		return patch.Instruction{}, err
	}
	in := patch.Instruction{Op: op}
	switch op {
	case patch.OpWrite:
		in.Address, in.Value = ps.Address, ps.Value
	case patch.OpModify:
		in.Address, in.And, in.Or = ps.Address, ps.And, ps.Or
	case patch.OpSetField:
		in.Base, in.LSB, in.Width, in.Offset, in.Value = ps.Base, ps.LSB, ps.Width, ps.Offset, ps.Value
	}
	if err := in.Validate(); err != nil {
		return patch.Instruction{}, err
	}
	return in, nil
}
