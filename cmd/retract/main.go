package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrelworks/retract/internal/artifact"
	"github.com/kestrelworks/retract/internal/bitset"
	"github.com/kestrelworks/retract/internal/commit"
	"github.com/kestrelworks/retract/internal/ledger"
	"github.com/kestrelworks/retract/internal/lines"
	"github.com/kestrelworks/retract/internal/mark"
	"github.com/kestrelworks/retract/internal/plan"
	"github.com/kestrelworks/retract/internal/review"
	"github.com/kestrelworks/retract/internal/scribe"
	"github.com/kestrelworks/retract/internal/store"
	"github.com/kestrelworks/retract/internal/ui"
)

// Set via ldflags at build time
var (
	version   = "dev"
	commitSHA = "none"
	date      = "unknown"
)

func buildVersion() string {
	if commitSHA == "none" {
		return version
	}
	return fmt.Sprintf("%s (%s, %s)", version, commitSHA, date)
}

func main() {
	var noColor bool

	rootCmd := &cobra.Command{
		Use:   "retract",
		Short: "retract — take back lines from a generated build script and its history",
		Long: "A local CLI tool that maintains a generated build script and a command-history log,\n" +
			"and retracts previously appended lines by regex, line range, or undo depth.\n" +
			"A per-file undo ledger keeps deletions safe across process restarts.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ui.Init(noColor)
		},
	}

	rootCmd.Version = buildVersion()
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "core", Title: "Core Commands:"},
		&cobra.Group{ID: "edit", Title: "Editing Commands:"},
		&cobra.Group{ID: "history", Title: "History Commands:"},
	)

	initC := initCmd()
	initC.GroupID = "core"
	statusC := statusCmd()
	statusC.GroupID = "core"
	appendC := appendCmd()
	appendC.GroupID = "edit"
	rmC := rmCmd()
	rmC.GroupID = "edit"
	deletedC := deletedCmd()
	deletedC.GroupID = "history"

	rootCmd.AddCommand(initC)
	rootCmd.AddCommand(statusC)
	rootCmd.AddCommand(appendC)
	rootCmd.AddCommand(rmC)
	rootCmd.AddCommand(deletedC)

	if err := rootCmd.Execute(); err != nil {
		ui.Error(err.Error())
		if errors.Is(err, mark.ErrInput) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:     "init",
		Short:   "Initialize the retract work directory",
		Long:    "Create the work directory (.retract by default, or $RETRACT_DIR) with its config.yaml and deleted/ record directory. Run this once before using any other command.",
		Example: "  retract init\n  retract init --force",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := store.WorkDir()
			if err := store.Init(dir, force); err != nil {
				return err
			}
			ui.Success("retract initialized")
			ui.Detail("Dir:", dir)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Reinitialize even if the work directory already exists")
	return cmd
}

func loadStore() (*store.Store, error) {
	s, err := store.Load(store.WorkDir())
	if err != nil {
		return nil, fmt.Errorf("retract not initialized — run 'retract init' first: %w", err)
	}
	return s, nil
}

func appendCmd() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:     "append <line>...",
		Short:   "Append lines to the script and/or history",
		Long:    "Append each argument as one line to the selected targets. Every invocation is recorded in the undo ledger as one edit batch per target, so it can later be taken back with 'retract rm --undo'.",
		Example: "  retract append 'RUN apt-get update'\n  retract append --target history 'make test'",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}
			targets, err := store.ParseTargets(target)
			if err != nil {
				return fmt.Errorf("%w: %v", mark.ErrInput, err)
			}
			for _, t := range targets {
				res, err := scribe.Append(s, t, args)
				if err != nil {
					return err
				}
				if res.Rebuilt {
					ui.Warning(fmt.Sprintf("%s: undo ledger disagreed with the file and was rebuilt", t))
				}
				ui.Success(fmt.Sprintf("%s: appended %d line(s)", t, res.Added))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "both", "Which file to append to: both, script or history")
	return cmd
}

// rmOptions carries one rm invocation's validated inputs.
type rmOptions struct {
	patterns   []string
	ranges     string
	undo       int
	maxDelete  int
	blanks     plan.BlankPolicy
	ignoreCase bool
	verbose    bool
	reset      bool
	answer     review.Answer // "" means interactive
}

func rmCmd() *cobra.Command {
	var (
		target     string
		patterns   []string
		ranges     string
		undo       int
		maxDelete  int
		blanks     string
		ignoreCase bool
		verbose    bool
		reset      bool
		answer     string
	)
	cmd := &cobra.Command{
		Use:   "rm",
		Short: "Retract previously appended lines",
		Long: "Mark lines for deletion by regex, line range and/or undo depth, review the candidates,\n" +
			"then rewrite the target in place. Independently supplied predicates intersect: a line is\n" +
			"deleted only if every predicate wants it gone. Deleted non-blank lines are preserved as a\n" +
			"record under the work directory's deleted/ dir.",
		Example: "  retract rm -e '^#'\n" +
			"  retract rm --target script -e 'apt-get' --lines 10-50\n" +
			"  retract rm --undo 2 --answer yes\n" +
			"  retract rm --blanks squeeze --max 20",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if reset && (len(patterns) > 0 || ranges != "" || undo != 0 || blanks != "") {
				return fmt.Errorf("%w: --reset rebuilds the ledger without deleting; drop -e, --lines, --undo and --blanks", mark.ErrInput)
			}
			s, err := loadStore()
			if err != nil {
				return err
			}
			targets, err := store.ParseTargets(target)
			if err != nil {
				return fmt.Errorf("%w: %v", mark.ErrInput, err)
			}

			// Validate every input up front: a usage error must abort
			// before any side effect on any target.
			opts := rmOptions{
				patterns:   patterns,
				ranges:     ranges,
				undo:       undo,
				maxDelete:  maxDelete,
				ignoreCase: ignoreCase,
				verbose:    verbose || s.Config.Verbose,
				reset:      reset,
			}
			if undo < 0 || maxDelete < 0 {
				return fmt.Errorf("%w: --undo and --max must not be negative", mark.ErrInput)
			}
			if opts.maxDelete == 0 {
				opts.maxDelete = s.Config.MaxDelete
			}
			policyStr := blanks
			if policyStr == "" {
				policyStr = s.Config.BlankPolicy
			}
			if opts.blanks, err = plan.ParseBlankPolicy(policyStr); err != nil {
				return err
			}
			if answer != "" {
				if opts.answer, err = review.ParseAnswer(answer); err != nil {
					return err
				}
			}
			if !reset && len(patterns) == 0 && ranges == "" && undo == 0 && opts.blanks == plan.Preserve {
				return fmt.Errorf("%w: nothing selects lines — pass -e, --lines, --undo, --blanks or --reset", mark.ErrInput)
			}

			var degraded error
			for _, t := range targets {
				if err := retractOne(s, t, opts); err != nil {
					if errors.Is(err, ledger.ErrLedger) {
						// The text files are already correct; report and
						// keep going, but exit nonzero.
						ui.Warning(err.Error())
						degraded = err
						continue
					}
					return err
				}
			}
			return degraded
		},
	}
	cmd.Flags().StringVar(&target, "target", "both", "Which file to edit: both, script or history")
	cmd.Flags().StringArrayVarP(&patterns, "pattern", "e", nil, "Delete lines matching this regex (repeatable; multiple patterns OR together)")
	cmd.Flags().StringVar(&ranges, "lines", "", "Delete these 1-based line ranges, e.g. '3,10-20,40-'")
	cmd.Flags().IntVar(&undo, "undo", 0, "Delete the lines added by the last N edits")
	cmd.Flags().IntVar(&maxDelete, "max", 0, "Delete at most N lines, preferring the most recently added (0 = config default)")
	cmd.Flags().StringVar(&blanks, "blanks", "", "Blank-line policy: preserve, squeeze or truncate (default from config)")
	cmd.Flags().BoolVarP(&ignoreCase, "ignore-case", "i", false, "Case-insensitive pattern matching")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Echo deleted lines to the terminal")
	cmd.Flags().BoolVar(&reset, "reset", false, "Discard undo history: rebuild the ledger as one batch covering the whole file")
	cmd.Flags().StringVar(&answer, "answer", "", "Pre-supplied review answer for non-interactive use: yes, no or quit")
	return cmd
}

// retractOne runs the full retraction pipeline against a single target:
// load, mark (regex → ranges → undo → blanks → cap), review, rewrite.
func retractOne(s *store.Store, t store.Target, opts rmOptions) error {
	st, err := lines.Load(s.TargetPath(t))
	if err != nil {
		return err
	}

	carry, err := ledger.ReadCarry(s.CarryPath())
	if err != nil {
		// A damaged carry is self-healing the same way a damaged
		// ledger is: warn and fall back to "nothing pending".
		ui.Warning(err.Error())
		carry = ledger.Carry{}
	}
	pending := carrySlot(carry, t)

	led, err := ledger.Load(s.LedgerPath(t), st.Count(), pending)
	if err != nil {
		return err
	}
	if led.Inconsistent() {
		ui.Warning(fmt.Sprintf("%s: undo ledger disagreed with %s; history reset to a single batch",
			t, s.TargetPath(t)))
	}

	if opts.reset {
		led.Rebuild()
		if err := led.Write(); err != nil {
			return err
		}
		if err := clearCarrySlot(s, carry, t); err != nil {
			return err
		}
		ui.Success(fmt.Sprintf("%s: ledger reset (%d lines, 1 batch)", t, led.Total()))
		return nil
	}

	// Predicate passes, strictly in request order. The first pass sets,
	// the rest intersect.
	bs := bitset.New(st.Count())
	mode := mark.First
	if len(opts.patterns) > 0 {
		if err := mark.Regex(bs, st, opts.patterns, opts.ignoreCase, mode); err != nil {
			return err
		}
		mode = mark.Intersect
	}
	if opts.ranges != "" {
		if err := mark.Ranges(bs, st, opts.ranges, mode); err != nil {
			return err
		}
		mode = mark.Intersect
	}
	if opts.undo > 0 {
		led.MarkUndo(opts.undo, bs, mode)
	}
	plan.MarkBlanks(bs, st, opts.blanks)
	plan.ApplyCap(bs, st, opts.maxDelete)

	var prompter review.Prompter
	if opts.answer != "" {
		prompter = review.Scripted(opts.answer)
	} else {
		prompter = &ui.ReviewPrompter{TargetName: t.String()}
	}
	if err := review.Run(bs, st, prompter); err != nil {
		return err
	}

	meta := artifact.Meta{
		Target:    t.String(),
		Timestamp: time.Now().UTC(),
		Patterns:  opts.patterns,
		Ranges:    opts.ranges,
		UndoDepth: opts.undo,
	}
	var echo io.Writer
	if opts.verbose {
		echo = os.Stdout
	}
	res, err := commit.Rewrite(st, bs, led, s, meta, echo)
	if err != nil {
		return err
	}
	if res.RecordErr != nil {
		ui.Warning(fmt.Sprintf("%s: deleted lines could not be recorded: %v", t, res.RecordErr))
	}

	if res.LedgerErr == nil {
		// Fold what is still pending into a proper batch and release
		// the carry slot; the append side starts from a clean slate.
		if led.PendingDelta() > 0 {
			led.Append(led.PendingDelta())
			if err := led.Write(); err != nil {
				res.LedgerErr = err
			}
		}
	}
	if res.LedgerErr == nil {
		if err := clearCarrySlot(s, carry, t); err != nil {
			res.LedgerErr = err
		}
	}

	if res.Deleted+res.BlankDropped == 0 {
		ui.Info(fmt.Sprintf("%s: nothing deleted", t))
	} else {
		ui.Success(fmt.Sprintf("%s: deleted %d line(s), %d kept", t, res.Deleted+res.BlankDropped, res.Kept))
		if res.RecordPath != "" {
			ui.Detail("Record:", res.RecordPath)
		}
	}
	if res.LedgerErr != nil {
		return fmt.Errorf("%s deleted, but its undo ledger could not be updated (see %s): %w",
			s.TargetPath(t), s.LedgerPath(t), res.LedgerErr)
	}
	return nil
}

func carrySlot(c ledger.Carry, t store.Target) int {
	if t == store.History {
		return c.History
	}
	return c.Script
}

func clearCarrySlot(s *store.Store, c ledger.Carry, t store.Target) error {
	if t == store.History {
		c.History = 0
	} else {
		c.Script = 0
	}
	if c == (ledger.Carry{}) {
		return ledger.ClearCarry(s.CarryPath())
	}
	return ledger.WriteCarry(s.CarryPath(), c)
}

func deletedCmd() *cobra.Command {
	var target string
	var show bool
	cmd := &cobra.Command{
		Use:     "deleted",
		Short:   "Show previously deleted lines",
		Long:    "List the deleted-lines records written by past rm runs, newest first. With --show, render each record in full. This is a read-only view; no deletion is performed.",
		Example: "  retract deleted\n  retract deleted --target script --show",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}
			if target != "" && target != "both" {
				if _, err := store.ParseTargets(target); err != nil {
					return fmt.Errorf("%w: %v", mark.ErrInput, err)
				}
			}
			filter := target
			if filter == "both" {
				filter = ""
			}
			records, err := artifact.List(s, filter)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				ui.EmptyState("No deletions recorded yet.")
				return nil
			}
			if show {
				for i := range records {
					ui.RenderMarkdown(records[i].Markdown())
				}
				return nil
			}
			var rows [][]string
			for _, r := range records {
				rows = append(rows, []string{
					r.Frontmatter.Timestamp.Local().Format("2006-01-02 15:04"),
					r.Frontmatter.Target,
					strconv.Itoa(len(r.Lines)),
					summarize(r),
				})
			}
			ui.Table([]string{"WHEN", "TARGET", "LINES", "SELECTED BY"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "Only records for this target: script or history")
	cmd.Flags().BoolVar(&show, "show", false, "Render each record in full")
	return cmd
}

func summarize(r artifact.Record) string {
	var parts []string
	if len(r.Frontmatter.Patterns) > 0 {
		parts = append(parts, "patterns: "+strings.Join(r.Frontmatter.Patterns, ", "))
	}
	if r.Frontmatter.Ranges != "" {
		parts = append(parts, "lines: "+r.Frontmatter.Ranges)
	}
	if r.Frontmatter.UndoDepth > 0 {
		parts = append(parts, fmt.Sprintf("undo: %d", r.Frontmatter.UndoDepth))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "; ")
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show target files, their undo ledgers and pending counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}
			carry, err := ledger.ReadCarry(s.CarryPath())
			if err != nil {
				ui.Warning(err.Error())
			}

			var rows [][]string
			for _, t := range []store.Target{store.Script, store.History} {
				st, err := lines.Load(s.TargetPath(t))
				if err != nil {
					return err
				}
				led, err := ledger.Load(s.LedgerPath(t), st.Count(), carrySlot(carry, t))
				if err != nil {
					return err
				}
				state := "ok"
				if led.Inconsistent() {
					state = "inconsistent"
				}
				rows = append(rows, []string{
					t.String(),
					s.TargetPath(t),
					strconv.Itoa(st.Count()),
					strconv.Itoa(len(led.Batches())),
					strconv.Itoa(carrySlot(carry, t)),
					state,
				})
			}
			ui.Table([]string{"TARGET", "FILE", "LINES", "EDITS", "PENDING", "LEDGER"}, rows)
			return nil
		},
	}
}
