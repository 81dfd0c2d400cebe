// Package main provides the chair CLI entry point.
// The chair software drives a command chair's sound, music, relays, lights, position,
// remote control, pin lock and screens from declarative scripts.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"chairctl/internal/boot"
	"chairctl/internal/console"
	"chairctl/internal/kernel"
	"chairctl/internal/logger"
	"chairctl/internal/profile"
	"chairctl/internal/services"
	"chairctl/internal/version"
	"chairctl/pkg/chairtypes"
)

var (
	logLevel    string
	logFile     string
	testMode    bool
	runMode     string
	profilePath string
	metricsAddr string
)

// errShutdownRequested ends the run loop when a script asks the chair to shut down.
var errShutdownRequested = errors.New("shutdown requested")

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chair",
	Short: "Chair - command chair controller",
	Long: `Chair drives a command chair's sound, music, relays, lights, position, remote control,
pin lock and screens. Behavior is scripted; hardware is selected by the run mode.`,
	Run: runChair, // Default behavior is to run the chair
}

// runCmd represents the run command (explicit version of default behavior)
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Boot the chair and run until shutdown",
	Long: `Boot every service for the run mode, run the profile's boot script and keep running
until a script requests shutdown or the process receives SIGINT/SIGTERM.`,
	Run: runChair,
}

// scriptCmd runs one script and exits.
var scriptCmd = &cobra.Command{
	Use:   "script <name>",
	Short: "Boot the chair, run one script and exit",
	Args:  cobra.ExactArgs(1),
	Run:   runScript,
}

// consoleCmd starts the developer console.
var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Boot the chair and open an interactive console",
	Long: `Open an interactive console over a booted chair. Remote buttons, the pin keypad and
scripts can be driven from the terminal; chair messages are printed as they arrive.`,
	Run: runConsole,
}

// validateCmd checks a profile and its scripts without touching hardware.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the profile and scripts for the run mode",
	Run: func(_ *cobra.Command, _ []string) {
		mode, err := resolveRunMode()
		if err != nil {
			logger.Fatal("Invalid run mode", "error", err)
		}
		if err := validateProfile(os.Stdout, viper.GetString("profile"), mode); err != nil {
			logger.Fatal("Profile is invalid", "error", err)
		}
	},
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(version.GetFormattedVersion())
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set log level (debug|info|warn|error) [default: info]")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to file instead of stderr")
	rootCmd.PersistentFlags().BoolVar(&testMode, "test-mode", false, "Run in deterministic test mode")
	rootCmd.PersistentFlags().StringVar(&runMode, "run-mode", string(chairtypes.RunModeDev), "Run mode (dev|embedded-control-panel|embedded-heads-up)")
	rootCmd.PersistentFlags().StringVar(&profilePath, "profile", "chair.jsonc", "Path to the chair profile")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	// Bind flags to viper
	for _, name := range []string{"log-level", "log-file", "test-mode", "run-mode", "profile", "metrics-addr"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding %s flag: %v\n", name, err)
			os.Exit(1)
		}
	}
	viper.SetEnvPrefix("CHAIR")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scriptCmd)
	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)

	// Configure logger before any command execution
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env must be loaded before viper reads the environment
	if err := boot.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
		os.Exit(1)
	}
	viper.AutomaticEnv()

	if err := logger.Configure(viper.GetString("log-level"), viper.GetString("log-file"), viper.GetBool("test-mode")); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
		os.Exit(1)
	}
}

func resolveRunMode() (chairtypes.RunMode, error) {
	return chairtypes.ParseRunMode(viper.GetString("run-mode"))
}

// bootChair loads the profile and boots the kernel, exiting on any failure.
func bootChair(ctx context.Context) (*kernel.Kernel, *profile.Profile) {
	mode, err := resolveRunMode()
	if err != nil {
		logger.Fatal("Invalid run mode", "error", err)
	}

	path := viper.GetString("profile")
	logger.Info("Starting chair", "version", version.GetVersion(), "mode", mode, "profile", path)

	p, err := boot.LoadProfile(path, mode)
	if err != nil {
		fatal(err)
	}
	k, err := boot.Boot(ctx, p, mode)
	if err != nil {
		fatal(err)
	}
	return k, p
}

func fatal(err error) {
	if chairtypes.IsConfigError(err) {
		logger.Fatal("Configuration error", "error", err)
	}
	logger.Fatal("Boot failed", "error", err)
}

func runChair(_ *cobra.Command, _ []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	k, p := bootChair(ctx)
	if err := run(ctx, k, p, viper.GetString("metrics-addr")); err != nil {
		logger.Error("Chair stopped with error", "error", err)
	}
	if err := k.Terminate(); err != nil {
		logger.Error("Terminate failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Chair stopped")
}

// run serves metrics, runs the boot script and waits for a shutdown request or ctx.
func run(ctx context.Context, k *kernel.Kernel, p *profile.Profile, addr string) error {
	g, gctx := errgroup.WithContext(ctx)

	if addr != "" {
		g.Go(func() error {
			logger.Info("Serving metrics", "addr", addr)
			return k.Metrics().Serve(gctx, addr)
		})
	}

	g.Go(func() error {
		if err := boot.RunBootScript(gctx, k, p); err != nil && !interruptedByShutdown(k, err) {
			logger.Error("Boot script failed", "script", p.BootScript, "error", err)
		}
		return nil
	})

	g.Go(func() error {
		select {
		case <-k.Done():
			return errShutdownRequested
		case <-gctx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdownRequested) {
		return err
	}
	return nil
}

// interruptedByShutdown reports whether err is the cancellation that follows a shutdown
// request, such as a boot script ending in a shutdown command.
func interruptedByShutdown(k *kernel.Kernel, err error) bool {
	if !errors.Is(err, context.Canceled) {
		return false
	}
	select {
	case <-k.Done():
		return true
	default:
		return false
	}
}

func runScript(_ *cobra.Command, args []string) {
	id, err := chairtypes.ParseScriptID(args[0])
	if err != nil {
		logger.Fatal("Invalid script", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	k, _ := bootChair(ctx)
	runner, err := kernel.Lookup(k, services.ScriptKey)
	if err == nil {
		err = runner.Run(ctx, id)
	}
	if termErr := k.Terminate(); termErr != nil {
		logger.Error("Terminate failed", "error", termErr)
	}
	if err != nil {
		logger.Fatal("Script failed", "script", id, "error", err)
	}
	logger.Info("Script finished", "script", id)
}

func runConsole(_ *cobra.Command, _ []string) {
	k, _ := bootChair(context.Background())
	defer func() {
		if err := k.Terminate(); err != nil {
			logger.Error("Terminate failed", "error", err)
		}
	}()

	if err := console.New(k).Run(); err != nil {
		logger.Error("Console failed", "error", err)
	}
}
