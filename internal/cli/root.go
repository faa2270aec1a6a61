package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"anchorsync/internal/config"
	"anchorsync/src/logger"
)

// app carries what every subcommand needs once the root command has loaded configuration
type app struct {
	configPath string
	verbose    bool
	cfg        *config.Config
}

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "anchorsync",
		Short: "Spatial task anchors",
		Long: `anchorsync keeps 3D task markers in sync with a task store.

Tasks are created and completed from the command line; scripted spatial
sessions place them on detected surfaces, scale and rotate them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	// Global flags
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to config.yaml")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(newRunCmd(a))
	root.AddCommand(newTaskCmd(a))
	root.AddCommand(newChatCmd(a))
	return root
}

// Execute runs the root command until it finishes or the process is interrupted
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.Log.Level = "debug"
	}
	if err := logger.InitLogger(cfg.Log); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.cfg = cfg
	return nil
}
