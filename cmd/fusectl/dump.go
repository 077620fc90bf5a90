package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/fusekit/fuse/patch"
	"github.com/joshuapare/fusekit/fuse/record"
	"github.com/joshuapare/fusekit/fuse/repair"
	"github.com/joshuapare/fusekit/fuse/verify"
)

var (
	dumpTarget target
	dumpAll    bool
	dumpCheck  bool
)

func init() {
	cmd := newDumpCmd()
	dumpTarget.AddFlags(cmd.Flags())
	cmd.Flags().BoolVarP(&dumpAll, "all", "a", false, "Include blank rows and empty record slots")
	cmd.Flags().BoolVar(&dumpCheck, "check", false, "Run structural checks on the image")
	rootCmd.AddCommand(cmd)
}

func newDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Dump raw rows, records, repair entries and patches",
		Long: `The dump command prints the raw array followed by its decoded record
stream, repair table and boot patch tail.

Example:
  fusectl dump -d chip.yaml -i chip.otp
  fusectl dump -d chip.yaml -i chip.otp --check --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(cmd.Context())
		},
	}
}

type dumpRecord struct {
	Slot   int    `json:"slot"`
	State  string `json:"state"`
	Chain  uint64 `json:"chain"`
	Type   uint64 `json:"type"`
	Offset uint64 `json:"offset"`
	Data   string `json:"data"`
}

type dumpOutput struct {
	Geometry string       `json:"geometry"`
	Rows     []string     `json:"rows"`
	Records  []dumpRecord `json:"records"`
	Repairs  []string     `json:"repairs,omitempty"`
	Patches  []string     `json:"patches,omitempty"`
	Check    string       `json:"check,omitempty"`
}

func runDump(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s, release, err := dumpTarget.open()
	if err != nil {
		return err
	}
	defer release()

	g := s.Definition().Geometry
	img, err := s.Image(ctx)
	if err != nil {
		return err
	}

	out := dumpOutput{Geometry: g.Name}
	for row, w := range img {
		if w != 0 || dumpAll {
			out.Rows = append(out.Rows, fmt.Sprintf("%4d: 0x%08X", row, w))
		}
	}

	store, err := record.Load(img, g)
	if err != nil {
		return fmt.Errorf("failed to parse records: %w", err)
	}
	for i := 0; i < store.Len(); i++ {
		st := store.State(i)
		if st == record.SlotEmpty && !dumpAll {
			continue
		}
		r := store.Record(i)
		out.Records = append(out.Records, dumpRecord{
			Slot: i, State: st.String(), Chain: r.ChainID, Type: r.Type, Offset: r.Offset,
			Data: fmt.Sprintf("0x%X", r.Data),
		})
	}

	if g.RepairSupported() {
		ov, err := repair.Load(img, g)
		if err != nil {
			return err
		}
		for i, e := range ov.Entries() {
			if !e.Blank() || dumpAll {
				out.Repairs = append(out.Repairs, fmt.Sprintf("%3d: %s", i, e))
			}
		}
	}

	if g.PatchSupported() && store.Marker() >= 0 {
		start := g.PatchStartRow()
		stream, err := patch.Decode(img[start:g.PatchEndRow()])
		if err != nil {
			return fmt.Errorf("failed to decode patch tail: %w", err)
		}
		for _, l := range stream.Live {
			out.Patches = append(out.Patches, fmt.Sprintf("row %d: %s", start+l.Row, l.Instruction))
		}
	}

	if dumpCheck {
		out.Check = "ok"
		if err := verify.AllInvariants(g, img); err != nil {
			out.Check = err.Error()
		}
	}

	if jsonOut {
		return printJSON(out)
	}
	printInfo("geometry %s\n\nrows:\n", out.Geometry)
	for _, r := range out.Rows {
		printInfo("  %s\n", r)
	}
	printInfo("\nrecords:\n")
	for _, r := range out.Records {
		printInfo("  %3d  %-9s chain=%d type=%d off=%d data=%s\n", r.Slot, r.State, r.Chain, r.Type, r.Offset, r.Data)
	}
	if len(out.Repairs) > 0 {
		printInfo("\nrepair entries:\n")
		for _, r := range out.Repairs {
			printInfo("  %s\n", r)
		}
	}
	if len(out.Patches) > 0 {
		printInfo("\npatches:\n")
		for _, p := range out.Patches {
			printInfo("  %s\n", p)
		}
	}
	if out.Check != "" {
		printInfo("\ncheck: %s\n", out.Check)
	}
	return nil
}
