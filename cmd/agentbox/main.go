package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"agentbox/internal/cli/command"
	"agentbox/internal/cli/config"
	"agentbox/internal/cli/repl"
	"agentbox/internal/cli/state"
	"agentbox/internal/sandbox"
	"agentbox/pkg/utils/logger"
)

const defaultConfigPath = "configs/agentbox.yaml"

func main() {
	configPath := flag.String("config", getenvWithDefault("AGENTBOX_CONFIG", defaultConfigPath), "Path to config file")
	workspaceDir := flag.String("workspace", "", "Override workspace directory")
	isolation := flag.String("isolation", "", "Override isolation backend (auto|chroot|namespace-container|plain-subprocess)")
	python := flag.String("python", "", "Override base interpreter")
	mirror := flag.String("mirror", "", "Override package mirror URL")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return
	}
	if value := os.Getenv("AGENTBOX_WORKSPACE"); value != "" {
		cfg.Sandbox.Workspace = value
	}
	if value := os.Getenv("AGENTBOX_ISOLATION"); value != "" {
		cfg.Sandbox.Isolation = value
	}
	if *workspaceDir != "" {
		cfg.Sandbox.Workspace = *workspaceDir
	}
	if *isolation != "" {
		cfg.Sandbox.Isolation = *isolation
	}
	if *python != "" {
		cfg.Sandbox.Python = *python
	}
	if *mirror != "" {
		cfg.Sandbox.MirrorURL = *mirror
	}
	if cfg.Sandbox.Workspace == "" {
		fmt.Fprintln(os.Stderr, "workspace is required (flag -workspace, env AGENTBOX_WORKSPACE, or config)")
		return
	}

	box, err := sandbox.New(sandbox.Config{
		CPUTimeSeconds:   cfg.Sandbox.CPUTimeSeconds,
		MemoryMB:         cfg.Sandbox.MemoryMB,
		AllowedPaths:     cfg.Sandbox.AllowedPaths,
		HostWorkspace:    cfg.Sandbox.Workspace,
		VirtualWorkspace: cfg.Sandbox.VirtualRoot,
		Isolation:        cfg.Sandbox.Isolation,
		HelperPath:       cfg.Sandbox.HelperPath,
		Python:           cfg.Sandbox.Python,
		MirrorURL:        cfg.Sandbox.MirrorURL,
		PipArgs:          cfg.Sandbox.PipArgs,
		SeccompProfile:   cfg.Sandbox.SeccompProfile,
		Log:              &cfg.Logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init sandbox failed: %v\n", err)
		return
	}
	defer func() {
		if closeErr := box.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "close sandbox failed: %v\n", closeErr)
		}
		_ = logger.Sync()
	}()

	sessionState, err := state.Load(cfg.REPL.StatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load session state failed: %v\n", err)
		return
	}

	session, err := repl.New(box, command.Registry(), &sessionState, cfg.REPL.StatePath, cfg.REPL.HistoryFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init repl failed: %v\n", err)
		return
	}
	session.Run(context.Background())
}

func getenvWithDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
