package definition

// File is the YAML document as written.
type File struct {
	Geometry GeometrySpec  `yaml:"geometry"`
	Fuses    []FuseSpec    `yaml:"fuses"`
	Profiles []ProfileSpec `yaml:"profiles"`
}

// GeometrySpec is the geometry section.
type GeometrySpec struct {
	Name      string     `yaml:"name"`
	Variant   string     `yaml:"variant"`
	Rows      int        `yaml:"rows"`
	Region    RegionSpec `yaml:"region"`
	Fields    FieldsSpec `yaml:"fields"`
	PatchRows int        `yaml:"patch_rows"`
	Repair    RepairSpec `yaml:"repair"`
	Timing    TimingSpec `yaml:"timing"`
}

// RegionSpec bounds the record region in absolute bits.
type RegionSpec struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

// FieldsSpec holds record field widths.
type FieldsSpec struct {
	ChainID int `yaml:"chain_id"`
	Type    int `yaml:"type"`
	Address int `yaml:"address"`
	Data    int `yaml:"data"`
}

// RepairSpec locates the repair table.
type RepairSpec struct {
	Start      int   `yaml:"start"`
	Entries    int   `yaml:"entries"`
	SealedRows []int `yaml:"sealed_rows"`
}

// TimingSpec holds protocol timing as duration strings.
type TimingSpec struct {
	PollTimeout  string `yaml:"poll_timeout"`
	PollInterval string `yaml:"poll_interval"`
	SettleDelay  string `yaml:"settle_delay"`
	Attempts     int    `yaml:"attempts"`
}

// FuseSpec is one named fuse.
type FuseSpec struct {
	Name     string        `yaml:"name"`
	Locators []LocatorSpec `yaml:"locators"`
}

// RangeSpec is a chain or row bit range. Exactly one of Chain and Row is set.
type RangeSpec struct {
	Chain *uint64 `yaml:"chain"`
	Row   *int    `yaml:"row"`
	Bits  string  `yaml:"bits"` // "msb:lsb" or a single bit
}

// LocatorSpec is one locator of a fuse.
type LocatorSpec struct {
	RangeSpec `yaml:",inline"`
	Polarity  string     `yaml:"polarity"`
	Undo      *RangeSpec `yaml:"undo"`
	Redundant *RangeSpec `yaml:"redundant"`
}

// ProfileSpec is one named profile.
type ProfileSpec struct {
	Name    string            `yaml:"name"`
	Fuses   map[string]uint64 `yaml:"fuses"`
	Patches []PatchSpec       `yaml:"patches"`
}

// PatchSpec is one boot instruction.
type PatchSpec struct {
	Op      string `yaml:"op"`
	Address uint32 `yaml:"address"`
	And     uint32 `yaml:"and"`
	Or      uint32 `yaml:"or"`
	Base    int    `yaml:"base"`
	LSB     int    `yaml:"lsb"`
	Width   int    `yaml:"width"`
	Offset  uint16 `yaml:"offset"`
	Value   uint32 `yaml:"value"`
}
