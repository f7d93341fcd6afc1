package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeeftor/qmp-macro/internal/macro"
	"github.com/jeeftor/qmp-macro/internal/styles"
	"github.com/jeeftor/qmp-macro/internal/utils"
	"github.com/jeeftor/qmp-macro/internal/vision"
)

var validateJSON bool

var validateCmd = &cobra.Command{
	Use:   "validate [program-file]",
	Short: "Check a macro program for errors without running it",
	Long: `Check every function of a program: unknown ops, empty patterns or names,
calls to missing functions, recursive call cycles, jump targets past the end
of a function and pattern images that cannot be found.

Errors make the command exit with status 1; warnings do not.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProgram(args[0], false)
		if err != nil {
			return err
		}
		patterns := vision.NewPatterns(resolveImagesDir(args[0]))
		result := macro.Validate(p, patterns.Exists)

		w := out(cmd)
		if validateJSON {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}
		} else {
			for _, e := range result.Errors {
				fmt.Fprintf(w, "%s %s\n", styles.ErrorStyle.Render("error:"), e)
			}
			for _, e := range result.Warnings {
				fmt.Fprintf(w, "%s %s\n", styles.WarningStyle.Render("warning:"), e)
			}
			if result.Valid {
				fmt.Fprintf(w, "%s %s (%d functions, %d warnings)\n",
					styles.SuccessStyle.Render("✓"), args[0], len(p.Names()), len(result.Warnings))
			}
		}

		if !result.Valid {
			return utils.WithExitCode(fmt.Errorf("%s has %d error(s)", args[0], len(result.Errors)), utils.ExitCodeValidation)
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "print the result as JSON")
	rootCmd.AddCommand(validateCmd)
}
