package cmd

import (
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeeftor/qmp-macro/internal/logging"
	"github.com/jeeftor/qmp-macro/internal/qmp"
	"github.com/jeeftor/qmp-macro/internal/resource"
	"github.com/jeeftor/qmp-macro/internal/utils"
	"github.com/jeeftor/qmp-macro/internal/vision"
)

var (
	captureRegion     string
	captureForce      bool
	captureScreenFile string
)

var captureCmd = &cobra.Command{
	Use:   "capture [vmid] [name]",
	Short: "Save a region of the VM screen as a pattern image",
	Long: `Grab one frame from the VM and save a region of it as a PNG pattern in the
images directory. Without --region the whole frame is saved.

When screenshot.remote_temp_path is configured the full screendump is written
on the QEMU host at that path instead and nothing is saved locally.

Examples:
  qmp-macro capture 106 ok_button --region 412,300,80,24
  qmp-macro capture 106 desktop.png --force`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		vmid, name := args[0], args[1]

		region, err := parseRegion(captureRegion)
		if err != nil {
			return err
		}

		ctx := rootContext()
		var screen vision.Screen
		if captureScreenFile != "" {
			screen = vision.FileScreen{Path: captureScreenFile}
		} else {
			client, err := ConnectToVM(ctx, vmid)
			if err != nil {
				return err
			}
			if remote := getRemoteTempPath(); remote != "" {
				if err := client.ScreenDump(ctx, "", remote); err != nil {
					return err
				}
				logging.TakeScreenshot(remote, "on QEMU host")
				return nil
			}
			screen = qmp.Screen{Client: client}
		}

		outputFile := patternPath(name)
		saved, err := resource.CaptureRegion(ctx, screen, outputFile, resource.CaptureOptions{
			Region:    region,
			Overwrite: captureForce,
		})
		if errors.Is(err, resource.ErrExists) {
			return utils.FileSystemError("capture", outputFile, err)
		}
		if err != nil {
			return err
		}
		logging.TakeScreenshot(outputFile, fmt.Sprintf("%dx%d at %d,%d", saved.Dx(), saved.Dy(), saved.Min.X, saved.Min.Y))
		return nil
	},
}

// patternPath places a bare name in the images directory and adds .png when no extension is given
func patternPath(name string) string {
	if filepath.Ext(name) == "" {
		name += ".png"
	}
	if filepath.IsAbs(name) || strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	return filepath.Join(getImagesDir(), name)
}

// parseRegion reads "x,y,w,h"; the empty string means the whole frame
func parseRegion(s string) (image.Rectangle, error) {
	if strings.TrimSpace(s) == "" {
		return image.Rectangle{}, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return image.Rectangle{}, fmt.Errorf("invalid region %q: want x,y,w,h", s)
	}
	var n [4]int
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("invalid region %q: %w", s, err)
		}
		n[i] = v
	}
	if n[0] < 0 || n[1] < 0 || n[2] <= 0 || n[3] <= 0 {
		return image.Rectangle{}, fmt.Errorf("invalid region %q: width and height must be positive", s)
	}
	return image.Rect(n[0], n[1], n[0]+n[2], n[1]+n[3]), nil
}

func init() {
	captureCmd.Flags().StringVarP(&captureRegion, "region", "r", "", "region to save as x,y,w,h")
	captureCmd.Flags().BoolVar(&captureForce, "force", false, "overwrite an existing file")
	captureCmd.Flags().StringVar(&captureScreenFile, "screen-file", "", "crop from this image instead of the VM screen")
	rootCmd.AddCommand(captureCmd)
}
