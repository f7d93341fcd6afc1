package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeeftor/qmp-macro/internal/logging"
	"github.com/jeeftor/qmp-macro/internal/macro"
	"github.com/jeeftor/qmp-macro/internal/vars"
)

var (
	sampleFormat string
	sampleForce  bool
)

var sampleCmd = &cobra.Command{
	Use:   "sample [program-file]",
	Short: "Write or print an example macro program",
	Long: `Produce a small program that uses every op: a login function that retries
a click up to three times and a main function that calls it.

Without a file argument the program is printed to stdout.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := sampleProgram()
		if err != nil {
			return err
		}

		if len(args) == 0 {
			format := macro.Format(sampleFormat)
			if format != macro.FormatJSON && format != macro.FormatYAML {
				return fmt.Errorf("unknown format %q (want json or yaml)", sampleFormat)
			}
			return macro.Encode(out(cmd), p, format)
		}

		path := args[0]
		if _, err := os.Stat(path); err == nil && !sampleForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := saveProgram(path, p); err != nil {
			return err
		}
		logging.SaveFile(path, "sample program")
		return nil
	},
}

// sampleProgram builds the example program
func sampleProgram() (*macro.Program, error) {
	p := macro.NewProgram()

	if err := p.CreateFunction("Login"); err != nil {
		return nil, err
	}
	wait := macro.NewImageTarget("login_prompt.png")
	wait.Timeout = time.Minute
	click := macro.NewImageTarget("ok_button.png")
	for _, s := range []macro.Step{
		{Action: macro.SetVariable{Name: "tries", Type: vars.Int, Value: "0"}},
		{Action: macro.WaitAppear{ImageTarget: wait}, NextOnFailure: macro.At(99)},
		{Action: macro.SetVariable{Name: "tries", Type: vars.Int, Value: "+=1"}},
		{Action: macro.ClickImage{ImageTarget: click}, NextOnSuccess: macro.At(6)},
		{Action: macro.IfCondition{Name: "tries", Type: vars.Int, Op: vars.OpNotEqual, Value: "3"}, NextOnSuccess: macro.At(3), NextOnFailure: macro.At(99)},
		{Action: macro.WaitDisappear{ImageTarget: macro.NewImageTarget("login_prompt.png")}},
		{Action: macro.SetVariable{Name: "logged_in", Type: vars.Bool, Value: "true"}},
	} {
		if _, err := p.AddStep(s); err != nil {
			return nil, err
		}
	}

	if err := p.SetCurrent(p.Names()[0]); err != nil {
		return nil, err
	}
	for _, s := range []macro.Step{
		{Action: macro.SetVariable{Name: "logged_in", Type: vars.Bool, Value: "false"}},
		{Action: macro.CallFunction{Callee: "Login"}},
		{Action: macro.IfCondition{Name: "logged_in", Type: vars.Bool, Op: vars.OpEqual, Value: "true"}, NextOnFailure: macro.At(99)},
		{Action: macro.ClickImage{ImageTarget: macro.NewImageTarget("start_menu.png")}},
	} {
		if _, err := p.AddStep(s); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func init() {
	sampleCmd.Flags().StringVar(&sampleFormat, "format", "json", "output format when printing: json or yaml")
	sampleCmd.Flags().BoolVar(&sampleForce, "force", false, "overwrite an existing file")
	rootCmd.AddCommand(sampleCmd)
}
