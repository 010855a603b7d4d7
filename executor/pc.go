package executor

import (
	"context"

	"github.com/jcqin2022/AIAssistant/tool"
)

// Capability names exposed by host executors.
const (
	ExecuteScriptName = "execute_script"
	GetSystemName     = "get_system"
)

// ScriptArgs are the arguments of execute_script.
type ScriptArgs struct {
	Script string `json:"script" description:"The system script to be executed."`
}

// NewPCRegistry returns the worker registry for general host work.
func NewPCRegistry(runner ScriptRunner) *tool.Registry {
	return hostRegistry(runner,
		"Execute a script string. If on Windows, use power shell to execute. If on Linux, use bash and return the result.")
}

// NewClusterRegistry returns the worker registry used for kubectl and aws
// management scripts. Pair it with a runner built with ShellCmd.
func NewClusterRegistry(runner ScriptRunner) *tool.Registry {
	return hostRegistry(runner,
		"Execute a aws and k8s management script string. If on Windows, use cmd to execute. If on Linux, use bash and return the result.")
}

func hostRegistry(runner ScriptRunner, scriptDescription string) *tool.Registry {
	return tool.NewRegistry(
		tool.NewTypedTool(ExecuteScriptName, scriptDescription, func(ctx context.Context, args ScriptArgs) (string, error) {
			return runner.ExecuteScript(ctx, args.Script)
		}),
		tool.NewFunctionTool(GetSystemName, "Return a string to indicate if it is Windows or Linux system.", nil,
			func(context.Context, map[string]any) (string, error) {
				return string(runner.System()), nil
			}),
	)
}
