package distlock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/kalbasit/distlock/pkg/lock"
)

const (
	// DefaultJobTTL is the default lease of the lock held around a command.
	DefaultJobTTL = 10 * time.Minute

	// DefaultNotAcquiredExitCode is EX_TEMPFAIL from sysexits.h.
	DefaultNotAcquiredExitCode = 75

	// childWaitDelay is how long a child gets to exit after SIGTERM before it
	// is killed.
	childWaitDelay = 10 * time.Second
)

var (
	// ErrNoCommand is returned when no command follows the flags.
	ErrNoCommand = errors.New("no command given, pass it after --")

	// ErrLockHeld is returned when the lock is held by someone else.
	ErrLockHeld = errors.New("lock is held elsewhere")
)

// ExitError asks the process to terminate with Code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (exit code %d)", e.Err, e.Code)
	}

	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// job is a command run while holding a lock.
type job struct {
	command string
	key     string
	wait    time.Duration
	ttl     time.Duration
	args    []string

	notAcquiredExitCode int

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func newJob(cmd *cli.Command) (*job, error) {
	args := cmd.Args().Slice()
	if len(args) == 0 {
		return nil, ErrNoCommand
	}

	keyParts := cmd.StringSlice("key-part")

	parts := make([]any, 0, len(keyParts))
	for _, p := range keyParts {
		parts = append(parts, p)
	}

	return &job{
		command:             cmd.Name,
		key:                 lock.JoinKey(cmd.String("key"), parts...),
		wait:                cmd.Duration("wait"),
		ttl:                 cmd.Duration("ttl"),
		args:                args,
		notAcquiredExitCode: cmd.Int("not-acquired-exit-code"),
		stdin:               os.Stdin,
		stdout:              os.Stdout,
		stderr:              os.Stderr,
	}, nil
}

// execute runs the command under the lock and returns its exit code. When the
// lock is held elsewhere it returns notAcquiredExitCode with ErrLockHeld.
func (j *job) execute(ctx context.Context, l lock.Locker) (int, error) {
	start := time.Now()

	code, err := lock.Execute(ctx, l, j.key, j.wait, j.ttl, j.runChild, j.notAcquired)

	result := jobResult(code, err)

	RecordJobRun(ctx, j.command, result)

	if result != JobResultSkipped {
		RecordJobDuration(ctx, j.command, time.Since(start).Seconds())
	}

	return code, err
}

func (j *job) notAcquired(ctx context.Context) (int, error) {
	zerolog.Ctx(ctx).
		Info().
		Str("key", j.key).
		Dur("wait", j.wait).
		Msg("lock is held elsewhere, skipping the command")

	return j.notAcquiredExitCode, ErrLockHeld
}

func (j *job) runChild(ctx context.Context) (int, error) {
	log := zerolog.Ctx(ctx).With().Str("key", j.key).Str("command", j.args[0]).Logger()

	//nolint:gosec
	c := exec.CommandContext(ctx, j.args[0], j.args[1:]...)
	c.Stdin = j.stdin
	c.Stdout = j.stdout
	c.Stderr = j.stderr
	c.Cancel = func() error { return c.Process.Signal(syscall.SIGTERM) }
	c.WaitDelay = childWaitDelay

	log.Info().Msg("lock acquired, running the command")

	err := c.Run()
	if err == nil {
		log.Info().Msg("command succeeded")

		return 0, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return 0, fmt.Errorf("error running %s: %w", j.args[0], err)
	}

	code := exitErr.ExitCode()

	// Shells report death by signal N as 128+N.
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		code = 128 + int(ws.Signal())
	}

	log.Warn().Int("exit_code", code).Msg("command failed")

	return code, nil
}

func jobResult(code int, err error) string {
	switch {
	case errors.Is(err, ErrLockHeld):
		return JobResultSkipped
	case err != nil:
		return JobResultError
	case code != 0:
		return JobResultFailure
	default:
		return JobResultSuccess
	}
}
