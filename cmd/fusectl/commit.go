package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/fusekit/pkg/fusekit"
)

var (
	commitTarget target
	commitDryRun bool
)

func init() {
	cmd := newCommitCmd()
	commitTarget.AddFlags(cmd.Flags())
	cmd.Flags().BoolVarP(&commitDryRun, "dry-run", "n", false, "Plan the commit without programming")
	rootCmd.AddCommand(cmd)
}

func newCommitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commit <profile>",
		Short: "Program a configuration profile",
		Long: `The commit command programs every fuse value and boot patch of a profile
in one verified commit.

Example:
  fusectl commit -d chip.yaml -i chip.otp production
  fusectl commit -d chip.yaml -i chip.otp production --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommit(cmd.Context(), args[0])
		},
	}
}

func runCommit(ctx context.Context, profile string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s, release, err := commitTarget.open()
	if err != nil {
		return err
	}
	defer release()

	if commitDryRun {
		plan, err := s.PlanProfile(ctx, profile)
		if err != nil {
			return fmt.Errorf("failed to plan profile: %w", err)
		}
		return printPlan(plan, true)
	}

	rep, err := s.CommitProfile(ctx, profile)
	if err != nil {
		return fmt.Errorf("failed to commit profile: %w", err)
	}
	return printReport(rep)
}

type planSummary struct {
	Target   string   `json:"target"`
	DryRun   bool     `json:"dry_run"`
	Rows     []int    `json:"rows"`
	Words    []string `json:"words"`
	Steps    []string `json:"steps,omitempty"`
	Repairs  []string `json:"repairs,omitempty"`
	Patches  int      `json:"patch_rows_written,omitempty"`
	Attempts int      `json:"attempts,omitempty"`
	Seq      uint64   `json:"journal_seq,omitempty"`
}

func summarize(plan *fusekit.Plan, dryRun bool) planSummary {
	sum := planSummary{Target: plan.Target, DryRun: dryRun, Rows: plan.Rows}
	for _, row := range plan.Rows {
		sum.Words = append(sum.Words, fmt.Sprintf("0x%08X", plan.Requested[row]))
	}
	for _, st := range plan.Steps {
		sum.Steps = append(sum.Steps, st.String())
	}
	for _, a := range plan.Repairs {
		sum.Repairs = append(sum.Repairs, fmt.Sprintf("%s bit %d entry %d", a.Kind, a.Bit, a.Entry))
	}
	if plan.Patch != nil {
		sum.Patches = len(plan.Patch.Written)
	}
	return sum
}

func printPlan(plan *fusekit.Plan, dryRun bool) error {
	return printSummary(summarize(plan, dryRun))
}

func printReport(rep *fusekit.Report) error {
	sum := summarize(rep.Plan, false)
	if rep.Result != nil {
		sum.Attempts = rep.Result.Attempts
	}
	if rep.Journal != nil {
		sum.Seq = rep.Journal.Seq
	}
	return printSummary(sum)
}

func printSummary(sum planSummary) error {
	if jsonOut {
		return printJSON(sum)
	}
	if len(sum.Rows) == 0 {
		printInfo("%s: nothing to program\n", sum.Target)
		return nil
	}
	verb := "programmed"
	if sum.DryRun {
		verb = "would program"
	}
	printInfo("%s: %s %d row(s)\n", sum.Target, verb, len(sum.Rows))
	for i, row := range sum.Rows {
		printInfo("  row %4d  %s\n", row, sum.Words[i])
	}
	for _, st := range sum.Steps {
		printVerbose("  record  %s\n", st)
	}
	for _, r := range sum.Repairs {
		printVerbose("  repair  %s\n", r)
	}
	if sum.Attempts > 1 {
		printInfo("  committed after %d attempts\n", sum.Attempts)
	}
	if sum.Seq > 0 {
		printVerbose("  journal entry %d\n", sum.Seq)
	}
	return nil
}
