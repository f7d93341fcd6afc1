package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jeeftor/qmp-macro/internal/logging"
	"github.com/jeeftor/qmp-macro/internal/macro"
	"github.com/jeeftor/qmp-macro/internal/styles"
	"github.com/jeeftor/qmp-macro/internal/vision"
)

var (
	stepFunc   string
	stepRecord macro.StepRecord

	stepTimeout    float64
	stepPoll       float64
	stepMoveMS     int
	stepConfidence float64
	stepVarName    string
	stepVarValue   string
	stepNextOK     string
	stepNextFail   string
)

var stepCmd = &cobra.Command{
	Use:   "step",
	Short: "Edit the steps of a macro function",
	Long: `List, add, remove, move and replace steps. Steps are edited in the program's
current function unless --func names another one; the current function is
left unchanged.

Step indices are 1-based. --next-ok and --next-fail take a step index to jump
to; an index past the last step ends the function and an empty value falls
through to the next step.

Ops: ` + opList(),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var stepListCmd = &cobra.Command{
	Use:   "list [program-file]",
	Short: "List the steps of a function",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProgram(args[0], false)
		if err != nil {
			return err
		}
		name := stepFunc
		if name == "" {
			name = p.Current()
		}
		steps, ok := p.Steps(name)
		if !ok {
			return fmt.Errorf("%w: %q", macro.ErrNotFound, name)
		}

		w := out(cmd)
		fmt.Fprintln(w, styles.HeaderStyle.Render(name))
		if len(steps) == 0 {
			fmt.Fprintln(w, styles.MutedStyle.Render("  (no steps)"))
		}
		for i, s := range steps {
			fmt.Fprintf(w, "%3d  %-15s %-40s %s\n", i+1,
				styles.KeyStyle.Render(string(s.Kind())),
				s.Describe(),
				styles.MutedStyle.Render(fmt.Sprintf("ok→%s fail→%s", targetText(s.NextOnSuccess), targetText(s.NextOnFailure))))
		}
		return nil
	},
}

var stepAddCmd = &cobra.Command{
	Use:   "add [program-file] [op]",
	Short: "Append a step",
	Long: `Append a step to a function.

Examples:
  qmp-macro step add login.json ClickImage --image ok_button.png --next-fail 5
  qmp-macro step add login.json WaitAppear --image desktop.png --timeout 60
  qmp-macro step add login.json SetVariable --var n --type int --value +=1
  qmp-macro step add login.json IfCondition --var n --type int --cmp "!=" --value 3 --next-ok 1
  qmp-macro step add login.json CallFunction --call Login`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editFunction(args[0], func(p *macro.Program) error {
			step, err := stepFromFlags(cmd.Flags(), args[1], p, args[0])
			if err != nil {
				return err
			}
			index, err := p.AddStep(step)
			if err != nil {
				return err
			}
			logging.Successf("Added step %d: %s %s", index, step.Kind(), step.Describe())
			return nil
		})
	},
}

var stepReplaceCmd = &cobra.Command{
	Use:   "replace [program-file] [index] [op]",
	Short: "Replace the step at an index",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseIndex(args[1])
		if err != nil {
			return err
		}
		return editFunction(args[0], func(p *macro.Program) error {
			step, err := stepFromFlags(cmd.Flags(), args[2], p, args[0])
			if err != nil {
				return err
			}
			if err := p.ReplaceStep(index, step); err != nil {
				return err
			}
			logging.Successf("Replaced step %d: %s %s", index, step.Kind(), step.Describe())
			return nil
		})
	},
}

var stepRemoveCmd = &cobra.Command{
	Use:   "remove [program-file] [index]",
	Short: "Remove the step at an index",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseIndex(args[1])
		if err != nil {
			return err
		}
		return editFunction(args[0], func(p *macro.Program) error {
			return p.RemoveStep(index)
		})
	},
}

var stepMoveCmd = &cobra.Command{
	Use:   "move [program-file] [index] [delta]",
	Short: "Move a step up (negative delta) or down",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseIndex(args[1])
		if err != nil {
			return err
		}
		var delta int
		if _, err := fmt.Sscanf(args[2], "%d", &delta); err != nil {
			return fmt.Errorf("invalid delta %q: %w", args[2], err)
		}
		return editFunction(args[0], func(p *macro.Program) error {
			return p.MoveStep(index, delta)
		})
	},
}

var stepClearCmd = &cobra.Command{
	Use:   "clear [program-file]",
	Short: "Remove every step of a function",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editFunction(args[0], func(p *macro.Program) error {
			p.ClearSteps()
			return nil
		})
	},
}

// editFunction runs fn with --func selected and restores the current function before saving
func editFunction(path string, fn func(p *macro.Program) error) error {
	return editProgram(path, false, func(p *macro.Program) error {
		previous := p.Current()
		if stepFunc != "" && stepFunc != previous {
			if err := p.SetCurrent(stepFunc); err != nil {
				return err
			}
			defer p.SetCurrent(previous)
		}
		return fn(p)
	})
}

// stepFromFlags builds a step from the record flags
func stepFromFlags(flags *pflag.FlagSet, op string, p *macro.Program, programFile string) (macro.Step, error) {
	kind, ok := macro.ParseKind(op)
	if !ok {
		return macro.Step{}, fmt.Errorf("unknown op %q (want one of %s)", op, opList())
	}

	r := stepRecord
	r.Op = string(kind)
	if flags.Changed("timeout") {
		r.TimeoutSec = &stepTimeout
	}
	if flags.Changed("poll") {
		r.PollSec = &stepPoll
	}
	if flags.Changed("move-ms") {
		r.MoveMS = &stepMoveMS
	}
	if flags.Changed("confidence") {
		r.Confidence = &stepConfidence
	}
	if flags.Changed("var") {
		r.VarName = &stepVarName
	}
	if flags.Changed("value") {
		r.VarValue = &stepVarValue
	}
	r.NextOK = macro.Target(stepNextOK)
	r.NextFail = macro.Target(stepNextFail)

	step := macro.StepFromRecord(r)
	if err := step.Validate(); err != nil {
		return macro.Step{}, err
	}

	switch a := step.Action.(type) {
	case macro.CallFunction:
		if !p.Has(a.Callee) {
			return macro.Step{}, fmt.Errorf("%w: %q", macro.ErrNotFound, a.Callee)
		}
	case macro.ClickImage, macro.WaitAppear, macro.WaitDisappear:
		pattern := r.Image
		if patterns := vision.NewPatterns(resolveImagesDir(programFile)); !patterns.Exists(pattern) {
			logging.UserWarnf("Pattern image %s not found (looked in %s)", pattern, patterns.Resolve(pattern))
		}
	}
	return step, nil
}

func parseIndex(s string) (int, error) {
	var index int
	if _, err := fmt.Sscanf(s, "%d", &index); err != nil || index < 1 {
		return 0, fmt.Errorf("invalid step index %q", s)
	}
	return index, nil
}

func targetText(t macro.Target) string {
	if t == macro.NoTarget {
		return "next"
	}
	return string(t)
}

func opList() string {
	names := make([]string, len(macro.Kinds))
	for i, k := range macro.Kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

func addRecordFlags(c *cobra.Command) {
	f := c.Flags()
	f.StringVar(&stepRecord.Image, "image", "", "pattern image (ClickImage, WaitAppear, WaitDisappear)")
	f.Float64Var(&stepTimeout, "timeout", 0, "wait timeout in seconds")
	f.Float64Var(&stepPoll, "poll", 0, "poll interval in seconds")
	f.IntVar(&stepMoveMS, "move-ms", 0, "pause after a click in milliseconds")
	f.Float64Var(&stepConfidence, "confidence", 0, "match confidence for this step (0-1)")
	f.StringVar(&stepRecord.CallFunc, "call", "", "function to call (CallFunction)")
	f.StringVar(&stepVarName, "var", "", "variable name (SetVariable, IfCondition)")
	f.StringVar(&stepRecord.VarType, "type", "int", "variable type: int, bool or string")
	f.StringVar(&stepVarValue, "value", "", "value; for int SetVariable a leading += adds to the variable")
	f.StringVar(&stepRecord.Cmp, "cmp", "==", "comparison for IfCondition")
	f.StringVar(&stepNextOK, "next-ok", "", "step to jump to on success")
	f.StringVar(&stepNextFail, "next-fail", "", "step to jump to on failure")
}

func init() {
	stepCmd.PersistentFlags().StringVarP(&stepFunc, "func", "f", "", "function to edit (default: the current function)")

	addRecordFlags(stepAddCmd)
	addRecordFlags(stepReplaceCmd)

	stepCmd.AddCommand(stepListCmd)
	stepCmd.AddCommand(stepAddCmd)
	stepCmd.AddCommand(stepReplaceCmd)
	stepCmd.AddCommand(stepRemoveCmd)
	stepCmd.AddCommand(stepMoveCmd)
	stepCmd.AddCommand(stepClearCmd)
	rootCmd.AddCommand(stepCmd)
}
