package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/sabercore/saber/pkg/engine"
	"github.com/sabercore/saber/pkg/saberdir"
	"github.com/sabercore/saber/pkg/schedule"
)

func main() {
	// Handle subcommands before flag parsing.
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "init":
			initCmd := flag.NewFlagSet("init", flag.ExitOnError)
			initCmd.Usage = func() {
				fmt.Fprintf(os.Stderr, "Usage: saber init [flags]\n\nInitialize a .saber directory with default structure and config.\n\nFlags:\n")
				initCmd.PrintDefaults()
			}
			dir := initCmd.String("saber-dir", saberdir.DefaultName, "path to .saber directory")
			defaults := initCmd.Bool("defaults", false, "write the default config without prompting")
			_ = initCmd.Parse(os.Args[2:])

			if err := runInit(*dir, *defaults); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}

			return
		case "config":
			configCmd := flag.NewFlagSet("config", flag.ExitOnError)
			configCmd.Usage = func() {
				fmt.Fprintf(os.Stderr, "Usage: saber config [flags]\n\nEdit an existing config file interactively.\n\nFlags:\n")
				configCmd.PrintDefaults()
			}
			cfgPath := configCmd.String("config", "", "path to configuration file")
			dir := configCmd.String("saber-dir", saberdir.DefaultName, "path to .saber directory")
			_ = configCmd.Parse(os.Args[2:])

			if err := runConfigEditor(*cfgPath, *dir); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}

			return
		}
	}

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: saber [flags]\n       saber <command> [flags]\n\nFlags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nCommands:\n  init    Initialize a .saber directory with default structure and config\n  config  Edit an existing config file interactively\n")
	}

	configPath := flag.String("config", "", "path to configuration file (default: .saber/config.yaml or saber.yaml)")
	saberDir := flag.String("saber-dir", saberdir.DefaultName, "path to .saber directory")
	envFile := flag.String("env", ".env", "path to .env file (ignored if missing)")
	flag.Parse()

	if err := loadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := run(*configPath, *saberDir); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runInit(dirPath string, useDefaults bool) error {
	d := saberdir.New(dirPath)

	if useDefaults {
		if err := saberdir.Bootstrap(d); err != nil {
			return err
		}

		fmt.Printf("Initialized %s\n", d.Root())

		return nil
	}

	configYAML, err := runWizard()
	if err != nil {
		return err
	}

	if err := saberdir.BootstrapWithConfig(d, configYAML); err != nil {
		return err
	}

	fmt.Printf("Initialized %s\n", d.Root())

	return nil
}

func run(configPath, saberDirPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Config resolution: explicit flag → .saber/config.yaml → saber.yaml.
	resolvedConfig := resolveConfigPath(configPath, saberDirPath)

	cfg, err := engine.LoadConfig(resolvedConfig)
	if err != nil {
		return err
	}

	dir := saberdir.New(saberDirPath)
	if err := saberdir.EnsureStructure(dir); err != nil {
		return err
	}

	// Logs go to a file; the terminal belongs to the TUI.
	log, err := buildLogger(dir.LogPath())
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	eng, err := engine.New(ctx, cfg, dir, log)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	sched := schedule.New(log)
	if cfg.SweepSchedule != "" {
		if err := sched.AddJob(eng.ReembedJob(), cfg.SweepSchedule); err != nil {
			return err
		}
	}
	sched.Start(ctx)
	defer sched.Stop()

	// Surface docs/ changes as events so the TUI can show them.
	go func() { _ = eng.WatchDocs(ctx) }()

	sess, err := eng.NewSession()
	if err != nil {
		return err
	}

	model := newAppModel(ctx, eng, sess)

	p := tea.NewProgram(model)

	// Send the program reference so the model can start bridge goroutines.
	go func() {
		p.Send(programReadyMsg{program: p})
	}()

	_, err = p.Run()
	return err
}

// buildLogger creates a production zap logger writing to the given file.
func buildLogger(path string) (*zap.Logger, error) {
	logCfg := zap.NewProductionConfig()
	logCfg.OutputPaths = []string{path}
	logCfg.ErrorOutputPaths = []string{path}

	return logCfg.Build()
}
