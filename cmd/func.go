package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeeftor/qmp-macro/internal/logging"
	"github.com/jeeftor/qmp-macro/internal/macro"
	"github.com/jeeftor/qmp-macro/internal/styles"
)

var funcCmd = &cobra.Command{
	Use:   "func",
	Short: "Manage the functions of a macro program",
	Long: `Create, rename, delete and select the named functions of a program file.
Files ending in .yaml or .yml are written as YAML, anything else as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var funcListCmd = &cobra.Command{
	Use:   "list [program-file]",
	Short: "List functions and their step counts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProgram(args[0], false)
		if err != nil {
			return err
		}
		w := out(cmd)
		for _, name := range p.Names() {
			steps, _ := p.Steps(name)
			marker := "  "
			if name == p.Current() {
				marker = styles.HighlightStyle.Render("*") + " "
			}
			fmt.Fprintf(w, "%s%s %s\n", marker, styles.KeyStyle.Render(name),
				styles.MutedStyle.Render(fmt.Sprintf("(%d steps)", len(steps))))
		}
		return nil
	},
}

var funcCreateCmd = &cobra.Command{
	Use:   "create [program-file] [name]",
	Short: "Create a function and make it current",
	Long: `Create a new, empty function. The file is created when it does not exist.

Example:
  qmp-macro func create login.json Login`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editProgram(args[0], true, func(p *macro.Program) error {
			if err := p.CreateFunction(args[1]); err != nil {
				return err
			}
			logging.Successf("Created function %s", args[1])
			return nil
		})
	},
}

var funcRenameCmd = &cobra.Command{
	Use:   "rename [program-file] [old] [new]",
	Short: "Rename a function (call steps keep the old name)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editProgram(args[0], false, func(p *macro.Program) error {
			if err := p.RenameFunction(args[1], args[2]); err != nil {
				return err
			}
			logging.Successf("Renamed %s to %s", args[1], args[2])
			return nil
		})
	},
}

var funcDeleteCmd = &cobra.Command{
	Use:   "delete [program-file] [name]",
	Short: "Delete a function",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editProgram(args[0], false, func(p *macro.Program) error {
			if err := p.DeleteFunction(args[1]); err != nil {
				return err
			}
			logging.Successf("Deleted function %s", args[1])
			return nil
		})
	},
}

var funcSelectCmd = &cobra.Command{
	Use:   "select [program-file] [name]",
	Short: "Make a function current",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editProgram(args[0], false, func(p *macro.Program) error {
			return p.SetCurrent(args[1])
		})
	},
}

// editProgram loads a program, applies fn and saves the result
func editProgram(path string, create bool, fn func(p *macro.Program) error) error {
	p, err := loadProgram(path, create)
	if err != nil {
		return err
	}
	if err := fn(p); err != nil {
		return err
	}
	return saveProgram(path, p)
}

func init() {
	funcCmd.AddCommand(funcListCmd)
	funcCmd.AddCommand(funcCreateCmd)
	funcCmd.AddCommand(funcRenameCmd)
	funcCmd.AddCommand(funcDeleteCmd)
	funcCmd.AddCommand(funcSelectCmd)
	rootCmd.AddCommand(funcCmd)
}
