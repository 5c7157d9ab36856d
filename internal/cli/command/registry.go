package command

import (
	"context"
	"strings"

	"agentbox/internal/sandbox"
	"agentbox/internal/sandbox/workspace"
)

// Registry returns all REPL commands keyed by name.
func Registry() map[string]Command {
	commands := []Command{
		{
			Name:    "sh",
			Usage:   "sh <command...>",
			Summary: "run a shell command in the workspace",
			MinArgs: 1,
			Raw:     true,
			Run:     runShell,
		},
		{
			Name:    "run",
			Usage:   "run <script> [args...]",
			Summary: "execute a script file",
			MinArgs: 1,
			Run:     runScript,
		},
		{
			Name:    "call",
			Usage:   "call <module[:class]> <function> [args... key=value...]",
			Summary: "import a module and call a function",
			MinArgs: 2,
			Run:     runLibraryCall,
		},
		{
			Name:    "callfile",
			Usage:   "callfile <path> <function> [args... key=value...]",
			Summary: "load a module from a file and call a function",
			MinArgs: 2,
			Run:     runModuleCall,
		},
		{
			Name:    "install",
			Usage:   "install <package...>",
			Summary: "install packages into the workspace prefix",
			MinArgs: 1,
			Run:     runInstall,
		},
		{
			Name:    "provision",
			Usage:   "provision <command...>",
			Summary: "run a provisioning command with the install environment",
			MinArgs: 1,
			Raw:     true,
			Run:     runProvision,
		},
		{
			Name:    "unpack",
			Usage:   "unpack <archive>",
			Summary: "unpack a root image archive into the control directory",
			MinArgs: 1,
			Run:     runUnpack,
		},
		{
			Name:    "ls",
			Usage:   "ls [all]",
			Summary: "list the workspace tree",
			Run:     runListing,
		},
		{
			Name:    "map",
			Usage:   "map <path>",
			Summary: "show the host and virtual forms of a path",
			MinArgs: 1,
			Run:     runMap,
		},
		{
			Name:    "info",
			Usage:   "info",
			Summary: "show the isolation backend and directories",
			Run:     runInfo,
		},
	}
	out := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		out[cmd.Name] = cmd
	}
	return out
}

func optionsFrom(env Env) *sandbox.RunOptions {
	st := env.State()
	return &sandbox.RunOptions{
		WorkingDir:       st.WorkingDir,
		ExtraSearchPaths: st.ExtraSearchPaths,
		Dependencies:     st.Dependencies,
	}
}

func runShell(ctx context.Context, env Env, args []string, raw string) error {
	output, err := env.Box().RunShell(ctx, raw, optionsFrom(env))
	if err != nil {
		return err
	}
	printOutput(env, output)
	return nil
}

func runScript(ctx context.Context, env Env, args []string, raw string) error {
	output, err := env.Box().RunScript(ctx, args[0], args[1:], optionsFrom(env))
	if err != nil {
		return err
	}
	printOutput(env, output)
	return nil
}

func runLibraryCall(ctx context.Context, env Env, args []string, raw string) error {
	module, class := splitTarget(args[0])
	callArgs, kwargs := SplitCallArgs(args[2:])
	res, err := env.Box().RunLibraryCall(ctx, module, class, args[1], callArgs, kwargs, optionsFrom(env))
	if err != nil {
		return err
	}
	env.Printf("ok (%dms)", res.WallTimeMs)
	env.Printf("%s", RenderValue(res.Value))
	printOutput(env, res.CapturedOutput)
	return nil
}

func runModuleCall(ctx context.Context, env Env, args []string, raw string) error {
	callArgs, kwargs := SplitCallArgs(args[2:])
	res, err := env.Box().RunModuleCall(ctx, args[0], args[1], callArgs, kwargs, optionsFrom(env))
	if err != nil {
		return err
	}
	env.Printf("ok (%dms)", res.WallTimeMs)
	env.Printf("%s", RenderValue(res.Value))
	printOutput(env, res.CapturedOutput)
	return nil
}

func runInstall(ctx context.Context, env Env, args []string, raw string) error {
	prov := env.Box().Provisioner()
	if err := prov.EnsureRuntime(ctx); err != nil {
		return err
	}
	if err := prov.EnsureInstaller(ctx); err != nil {
		return err
	}
	if err := prov.EnsureInstallPrefixes(); err != nil {
		return err
	}
	if err := prov.InstallDependencies(ctx, args); err != nil {
		return err
	}
	env.Printf("installed %s", strings.Join(args, ", "))
	return nil
}

func runProvision(ctx context.Context, env Env, args []string, raw string) error {
	prov := env.Box().Provisioner()
	if err := prov.EnsureRuntime(ctx); err != nil {
		return err
	}
	if err := prov.EnsureInstaller(ctx); err != nil {
		return err
	}
	if err := prov.EnsureInstallPrefixes(); err != nil {
		return err
	}
	if err := prov.RunProvisionCommand(ctx, raw); err != nil {
		return err
	}
	env.Printf("provision complete")
	return nil
}

func runUnpack(ctx context.Context, env Env, args []string, raw string) error {
	prov := env.Box().Provisioner()
	if err := prov.UnpackRootImage(args[0]); err != nil {
		return err
	}
	env.Printf("root image unpacked into %s", prov.ControlDir())
	return nil
}

func runListing(ctx context.Context, env Env, args []string, raw string) error {
	include := len(args) > 0 && args[0] == "all"
	text, err := env.Box().Listing(workspace.ListingOptions{IncludeHidden: include})
	if err != nil {
		return err
	}
	if text == "" {
		env.Printf("<empty>")
		return nil
	}
	env.Printf("%s", strings.TrimRight(text, "\n"))
	return nil
}

func runMap(ctx context.Context, env Env, args []string, raw string) error {
	ws := env.Box().Workspace()
	env.Printf("host:    %s", ws.MapToHost(args[0]))
	env.Printf("virtual: %s", ws.MapToVirtual(args[0]))
	return nil
}

func runInfo(ctx context.Context, env Env, args []string, raw string) error {
	box := env.Box()
	ws := box.Workspace()
	env.Printf("isolation: %s", box.Mode())
	env.Printf("workspace: %s -> %s", ws.HostRoot(), ws.VirtualRoot())
	env.Printf("control:   %s", box.ControlDir())
	if box.Provisioner().IsRootImage() {
		env.Printf("root image: present")
	} else {
		env.Printf("root image: absent")
	}
	return nil
}

// splitTarget separates "module:Class" into its parts.
func splitTarget(target string) (string, string) {
	if idx := strings.Index(target, ":"); idx >= 0 {
		return target[:idx], target[idx+1:]
	}
	return target, ""
}

func printOutput(env Env, output string) {
	trimmed := strings.TrimRight(output, "\n")
	if trimmed == "" {
		return
	}
	env.Printf("%s", trimmed)
}
