package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeeftor/qmp-macro/internal/logging"
	"github.com/jeeftor/qmp-macro/internal/macro"
	"github.com/jeeftor/qmp-macro/internal/qmp"
	"github.com/jeeftor/qmp-macro/internal/resource"
	"github.com/jeeftor/qmp-macro/internal/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile    string
	logLevel   string
	logFile    string
	socketPath string
	imagesDir  string

	// Global context and resource management
	contextManager *resource.ContextManager

	// Set when --log-file is used
	logFileHandle *os.File
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "qmp-macro",
	Short: "Run image-driven click macros against QEMU virtual machines",
	Long: `qmp-macro edits and runs macro programs: named functions made of steps
that wait for images on the VM screen, click them, call other functions and
branch on variables. Screens are captured and clicks injected over QMP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if logLevel == "" {
			logLevel = "info"
		}
		logging.InitWithLevel(logLevel)

		if logFile != "" {
			f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return utils.FileSystemError("open log file", logFile, err)
			}
			logFileHandle = f
			logging.SetOutput(f)
		}

		logging.Debug("Logging initialized", "level", logLevel)
		logging.Debug("Using socket path", "path", GetSocketPath())
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		shutdown()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	defer shutdown()
	return rootCmd.Execute()
}

func shutdown() {
	if contextManager != nil {
		if err := contextManager.Shutdown(); err != nil {
			logging.Debug("Shutdown finished with errors", "error", err)
		}
	}
	if logFileHandle != nil {
		logFileHandle.Close()
		logFileHandle = nil
	}
}

func init() {
	cobra.OnInitialize(initConfig, initResourceManagement)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.qmp-macro.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to a file instead of stdout")
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", "", "custom socket path (for SSH tunneling)")
	rootCmd.PersistentFlags().StringVar(&imagesDir, "images-dir", "", "directory relative pattern images resolve against (default ./images)")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_file", rootCmd.PersistentFlags().Lookup("log-file"))
	viper.BindPFlag("socket", rootCmd.PersistentFlags().Lookup("socket"))
	viper.BindPFlag("images_dir", rootCmd.PersistentFlags().Lookup("images-dir"))
}

// initResourceManagement initializes the global resource management system
func initResourceManagement() {
	if contextManager == nil {
		contextManager = resource.NewContextManager()
		logging.Debug("Resource management initialized")
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// QMP_MACRO_SOCKET, QMP_MACRO_IMAGES_DIR, ...
	viper.SetEnvPrefix("QMP_MACRO")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath("/etc/qmp-macro")

		viper.SetConfigType("yaml")
		viper.SetConfigName(".qmp-macro")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
	}

	if logLevel == "" {
		logLevel = viper.GetString("log_level")
	}
	if logFile == "" {
		logFile = viper.GetString("log_file")
	}
	socketPath = viper.GetString("socket")
	imagesDir = viper.GetString("images_dir")
}

// setDefaults registers the default for every config key
func setDefaults() {
	for k, v := range configDefaults() {
		viper.SetDefault(k, v)
	}
}

// GetSocketPath returns the socket path from config, env var, or flag
func GetSocketPath() string {
	if socketPath != "" {
		return socketPath
	}
	return viper.GetString("socket")
}

// getImagesDir returns the directory pattern references resolve against
func getImagesDir() string {
	if imagesDir != "" {
		return imagesDir
	}
	return viper.GetString("images_dir")
}

// getRemoteTempPath returns the QEMU-side screendump path, if configured
func getRemoteTempPath() string {
	if viper.IsSet("screenshot.remote_temp_path") {
		return viper.GetString("screenshot.remote_temp_path")
	}
	return ""
}

// rootContext returns the signal-aware process context
func rootContext() context.Context {
	if contextManager == nil {
		return context.Background()
	}
	return contextManager.GetContext()
}

// ConnectToVM opens (or reuses) the QMP connection for a VM
func ConnectToVM(ctx context.Context, vmid string) (*qmp.Client, error) {
	var client *qmp.Client
	err := logging.LogOperation("qmp_connect", vmid, func() error {
		var err error
		if contextManager != nil {
			client, err = contextManager.GetResourceManager().Connect(ctx, vmid, GetSocketPath())
			return err
		}
		if path := GetSocketPath(); path != "" {
			client = qmp.NewWithSocketPath(vmid, path)
		} else {
			client = qmp.New(vmid)
		}
		return client.Connect(ctx)
	})
	if err != nil {
		return nil, utils.ConnectionError(vmid, err)
	}
	return client, nil
}

// loadProgram reads a program document. With create set, a missing file
// yields a new program holding the default function.
func loadProgram(path string, create bool) (*macro.Program, error) {
	logging.Debug("Loading program", "path", path)
	p, err := macro.LoadFile(path)
	if err == nil {
		return p, nil
	}
	if create && errors.Is(err, fs.ErrNotExist) {
		return macro.NewProgram(), nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, utils.FileSystemError("read", path, err)
	}
	return nil, err
}

// saveProgram writes a program document
func saveProgram(path string, p *macro.Program) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return utils.FileSystemError("create directory", dir, err)
		}
	}
	if err := macro.SaveFile(path, p); err != nil {
		return utils.FileSystemError("write", path, err)
	}
	logging.Debug("Saved program", "path", path)
	return nil
}

// out is where command results are printed
func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
