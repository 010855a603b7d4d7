package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/jcqin2022/AIAssistant/logging"
)

// System identifies the host operating system family reported to models.
type System string

// Supported systems.
const (
	Windows System = "Windows"
	Linux   System = "Linux"
)

// DetectSystem returns the system family of the running process.
func DetectSystem() System {
	if runtime.GOOS == "windows" {
		return Windows
	}
	return Linux
}

// Shell selects how a script is handed to the host interpreter.
type Shell int

const (
	// ShellDefault uses powershell on Windows and bash elsewhere.
	ShellDefault Shell = iota
	// ShellCmd uses cmd /c on Windows and bash elsewhere.
	ShellCmd
)

// ErrCommandNotAllowed is returned when a script matches none of the
// configured allow-list patterns.
var ErrCommandNotAllowed = errors.New("command is not in the list of allowed commands")

// ScriptRunner executes scripts on the host.
type ScriptRunner interface {
	// ExecuteScript runs script and returns its standard output.
	ExecuteScript(ctx context.Context, script string) (string, error)
	// System reports the host system family.
	System() System
}

// RunnerOptions configure a LocalRunner.
type RunnerOptions struct {
	Shell Shell
	// AllowedCommands is a list of regular expressions; when non-empty a
	// script must match at least one of them.
	AllowedCommands []string
	// Timeout bounds one script execution; 0 means no timeout.
	Timeout time.Duration
	Logger  logging.Logger
	// System overrides the detected system family.
	System System
}

// LocalRunner runs scripts through the local shell.
type LocalRunner struct {
	shell   Shell
	allowed []*regexp.Regexp
	timeout time.Duration
	system  System
	logger  logging.Logger
}

var _ ScriptRunner = (*LocalRunner)(nil)

// NewLocalRunner creates a runner. Invalid allow-list patterns are reported
// as an error.
func NewLocalRunner(optFns ...func(o *RunnerOptions)) (*LocalRunner, error) {
	opts := RunnerOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	allowed := make([]*regexp.Regexp, 0, len(opts.AllowedCommands))
	for _, pattern := range opts.AllowedCommands {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid allowed command pattern %q: %w", pattern, err)
		}
		allowed = append(allowed, re)
	}

	system := opts.System
	if system == "" {
		system = DetectSystem()
	}

	return &LocalRunner{
		shell:   opts.Shell,
		allowed: allowed,
		timeout: opts.Timeout,
		system:  system,
		logger:  logging.OrNoOp(opts.Logger),
	}, nil
}

// System reports the system family of the runner.
func (r *LocalRunner) System() System { return r.system }

// ExecuteScript runs script and returns its standard output. A non-zero exit
// status is not an error; whatever the script printed is returned, matching
// how a model reads command output.
func (r *LocalRunner) ExecuteScript(ctx context.Context, script string) (string, error) {
	if strings.TrimSpace(script) == "" {
		return "", errors.New("empty script")
	}
	if !r.isAllowed(script) {
		return "", fmt.Errorf("%w: %q", ErrCommandNotAllowed, script)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	name, args := r.command(script)
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger := logging.WithContext(r.logger, ctx)
	logger.Debug("script.execute", "shell", name, "script", script)

	start := time.Now()
	err := cmd.Run()
	if ierr := interruption(ctx, err); ierr != nil {
		return stdout.String(), ierr
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		logger.Debug("script.exit_status", "code", exitErr.ExitCode(), "stderr", stderr.String())
	default:
		return "", fmt.Errorf("start %s: %w", name, err)
	}

	logger.Debug("script.done", "duration", time.Since(start), "bytes", stdout.Len())
	return stdout.String(), nil
}

// interruption reports a failed run caused by ctx ending. A script that
// completed on its own is never interrupted, even if ctx is done by now.
func interruption(ctx context.Context, runErr error) error {
	if runErr == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("script interrupted: %w", ctxErr)
	}
	return nil
}

func (r *LocalRunner) command(script string) (string, []string) {
	if r.system != Windows {
		return "bash", []string{"-c", script}
	}
	if r.shell == ShellCmd {
		return "cmd", []string{"/c", script}
	}
	return "powershell", []string{"-Command", script}
}

func (r *LocalRunner) isAllowed(script string) bool {
	if len(r.allowed) == 0 {
		return true
	}
	for _, re := range r.allowed {
		if re.MatchString(script) {
			return true
		}
	}
	return false
}
