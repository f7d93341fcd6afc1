package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/jeeftor/qmp-macro/internal/engine"
	"github.com/jeeftor/qmp-macro/internal/logging"
	"github.com/jeeftor/qmp-macro/internal/macro"
	"github.com/jeeftor/qmp-macro/internal/qmp"
	"github.com/jeeftor/qmp-macro/internal/styles"
	"github.com/jeeftor/qmp-macro/internal/tui"
	"github.com/jeeftor/qmp-macro/internal/utils"
	"github.com/jeeftor/qmp-macro/internal/vision"
)

var (
	runFunc       string
	runPlain      bool
	runScreenFile string
	runTimeout    time.Duration
	runAddTablet  string
)

// runCmd executes a macro program against a VM
var runCmd = &cobra.Command{
	Use:   "run [vmid] [program-file]",
	Short: "Run a macro program against a VM",
	Long: `Run a function of a macro program. Each step waits for, or clicks on,
a pattern image matched against QMP screendumps of the VM.

The entry function is the program's current function unless --func is given.
When stdout is a terminal a live monitor shows progress; press x to stop the
run. With --plain (or when output is redirected) progress is printed as lines.

Examples:
  # Run the current function of login.json on VM 106
  qmp-macro run 106 login.json

  # Run a specific function, giving up after five minutes
  qmp-macro run 106 login.yaml --func Login --timeout 5m

  # Exercise a program against a saved screendump without touching a VM
  qmp-macro run 106 login.json --screen-file frame.png --plain`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		vmid, programFile := args[0], args[1]

		logger := logging.NewContextualLogger(vmid, "run")
		timer := logging.StartTimer("macro_run", vmid)

		logging.LoadFile(programFile)
		program, err := loadProgram(programFile, false)
		if err != nil {
			timer.StopWithError(err, map[string]interface{}{"stage": "load"})
			return err
		}

		entry := program.Current()
		if runFunc != "" {
			entry = runFunc
		}

		patterns := vision.NewPatterns(resolveImagesDir(programFile))
		report := macro.Validate(program, patterns.Exists)
		for _, w := range append(report.Errors, report.Warnings...) {
			logger.Debug("Program finding", "finding", w.String())
		}
		if n := len(report.Errors) + len(report.Warnings); n > 0 {
			logging.UserWarnf("%d validation finding(s); run 'qmp-macro validate %s' for details", n, programFile)
		}

		ctx, cancel := contextManager.WithTimeout(runTimeout)
		defer cancel()

		screen, pointer, err := buildDevices(ctx, vmid)
		if err != nil {
			timer.StopWithError(err, map[string]interface{}{"stage": "connect"})
			return err
		}

		provider := vision.NewProvider(screen, pointer, patterns, vision.Options{
			Tolerance:         uint8(min(max(viper.GetInt("vision.tolerance"), 0), 255)),
			DefaultConfidence: viper.GetFloat64("vision.default_confidence"),
		})
		eng := engine.New(provider, engine.Config{MaxCallDepth: viper.GetInt("engine.max_call_depth")})
		runner := engine.NewRunner(eng, viper.GetInt("engine.event_buffer"))

		run, err := runner.Start(ctx, program, entry)
		if err != nil {
			timer.StopWithError(err, map[string]interface{}{"stage": "start"})
			return err
		}
		logger.Info("Macro run started", "run_id", run.ID, "entry", entry, "program", programFile)

		var outcome engine.Outcome
		if useTUI() {
			outcome, err = monitorRun(vmid, entry, run)
			if err != nil {
				return err
			}
		} else {
			outcome = followRun(run)
		}

		printVariables(out(cmd), outcome.Variables)
		timer.Stop(outcome.State == engine.Completed, map[string]interface{}{
			"run_id": outcome.RunID,
			"steps":  outcome.Steps,
			"state":  outcome.State.String(),
		})
		return outcomeError(outcome)
	},
}

// buildDevices returns the screen and pointer a run drives
func buildDevices(ctx context.Context, vmid string) (vision.Screen, vision.Pointer, error) {
	if runScreenFile != "" {
		logging.Debug("Using screen file instead of VM", "file", runScreenFile)
		return vision.FileScreen{Path: runScreenFile}, &vision.LogPointer{}, nil
	}

	client, err := ConnectToVM(ctx, vmid)
	if err != nil {
		return nil, nil, err
	}
	if runAddTablet != "" {
		if err := client.AddTablet(ctx, runAddTablet); err != nil {
			logging.UserWarnf("Could not add USB tablet: %v", err)
		} else {
			contextManager.GetResourceManager().AddCleanupFunc(func() error {
				return client.RemoveDevice(context.Background(), runAddTablet)
			})
		}
	}
	hold := time.Duration(viper.GetInt("pointer.hold_ms")) * time.Millisecond
	return qmp.Screen{Client: client}, qmp.Pointer{Client: client, Hold: hold}, nil
}

// resolveImagesDir anchors a relative images directory next to the program file
// when it does not exist in the working directory
func resolveImagesDir(programFile string) string {
	dir := getImagesDir()
	if dir == "" || filepath.IsAbs(dir) {
		return dir
	}
	if _, err := os.Stat(dir); err == nil {
		return dir
	}
	return filepath.Join(filepath.Dir(programFile), dir)
}

func useTUI() bool {
	return !runPlain && term.IsTerminal(int(os.Stdout.Fd()))
}

// monitorRun shows the live monitor until the run ends and the user quits
func monitorRun(vmid, entry string, run *engine.Run) (engine.Outcome, error) {
	// the monitor owns the terminal; keep log lines out of it
	if logFileHandle == nil {
		logging.SetOutput(io.Discard)
	}

	monitor := tui.NewMonitor(vmid, "qmp-macro: "+entry, run)
	if _, err := tea.NewProgram(monitor, tea.WithAltScreen()).Run(); err != nil {
		run.Cancel()
		run.Wait()
		return engine.Outcome{}, fmt.Errorf("monitor failed: %w", err)
	}

	outcome, ok := monitor.Outcome()
	if !ok {
		run.Cancel()
		outcome = run.Wait()
	}
	printOutcome(outcome)
	return outcome, nil
}

// followRun prints progress lines until the run ends
func followRun(run *engine.Run) engine.Outcome {
	logging.Start(fmt.Sprintf("%s (run %s)", run.Entry, run.ID))
	for ev := range run.Events() {
		printEvent(ev)
	}
	outcome := run.Wait()
	if n := run.Dropped(); n > 0 {
		logging.UserWarnf("%d progress event(s) were dropped", n)
	}
	logging.Debug("Run finished", "steps", outcome.Steps, "duration", outcome.Duration)
	printOutcome(outcome)
	return outcome
}

func printEvent(ev engine.Event) {
	switch ev.Type {
	case engine.EventStatus:
		templateFor(ev.Kind).Log(strings.Repeat("  ", ev.Depth) + ev.Message)
	case engine.EventStep:
		if !ev.OK {
			logging.StepFailTemplate.Logf("%s[%d] %s %s", ev.Function, ev.Index, ev.Kind, ev.Message)
		}
	}
}

func printOutcome(o engine.Outcome) {
	switch o.State {
	case engine.Completed:
		logging.Complete("Macro completed.")
	case engine.Aborted:
		logging.Stop(fmt.Sprintf("macro aborted: %v", o.Err))
	default:
		logging.Fail("Error", fmt.Sprint(o.Err))
	}
}

func templateFor(kind macro.Kind) logging.LogTemplate {
	switch kind {
	case macro.KindClickImage:
		return logging.ClickTemplate
	case macro.KindWaitAppear, macro.KindWaitDisappear:
		return logging.WaitTemplate
	case macro.KindCallFunction:
		return logging.CallTemplate
	case macro.KindSetVariable:
		return logging.VariableTemplate
	case macro.KindIfCondition:
		return logging.ConditionTemplate
	default:
		return logging.UnknownTemplate
	}
}

func printVariables(w io.Writer, vars map[string]string) {
	if len(vars) == 0 {
		return
	}
	names := make([]string, 0, len(vars))
	for n := range vars {
		names = append(names, n)
	}
	sort.Strings(names)

	fmt.Fprintln(w, styles.HeaderStyle.Render("Variables"))
	for _, n := range names {
		fmt.Fprintf(w, "  %s = %s\n", styles.KeyStyle.Render(n), styles.ValueStyle.Render(vars[n]))
	}
}

// outcomeError maps a terminal run state to the command's error
func outcomeError(o engine.Outcome) error {
	switch o.State {
	case engine.Completed:
		return nil
	case engine.Aborted:
		return utils.WithExitCode(fmt.Errorf("macro aborted: %w", o.Err), utils.ExitCodeTimeout)
	default:
		return utils.WithExitCode(fmt.Errorf("macro failed: %w", o.Err), utils.ExitCodeGeneral)
	}
}

func init() {
	runCmd.Flags().StringVarP(&runFunc, "func", "f", "", "entry function (default: the program's current function)")
	runCmd.Flags().BoolVar(&runPlain, "plain", false, "print progress lines instead of the live monitor")
	runCmd.Flags().StringVar(&runScreenFile, "screen-file", "", "match against this image instead of VM screendumps; clicks are only logged")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "stop the run after this long (0 = no limit)")
	runCmd.Flags().StringVar(&runAddTablet, "add-tablet", "", "attach a usb-tablet with this device id for the duration of the run")
	runCmd.Flags().Int("max-call-depth", 0, "nested function call limit")
	runCmd.Flags().Int("tolerance", 0, "per-channel color tolerance (0-255)")
	runCmd.Flags().Float64("confidence", 0, "default match confidence (0-1)")

	viper.BindPFlag("engine.max_call_depth", runCmd.Flags().Lookup("max-call-depth"))
	viper.BindPFlag("vision.tolerance", runCmd.Flags().Lookup("tolerance"))
	viper.BindPFlag("vision.default_confidence", runCmd.Flags().Lookup("confidence"))

	rootCmd.AddCommand(runCmd)
}
