package checks

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/maremma/maremma/internal/store"
)

// CLIRunner splits extra_config's command_line on whitespace, spawns
// the child under ctx's deadline, and maps exit 0 to ok and anything
// else to critical.
type CLIRunner struct{}

func (CLIRunner) Run(ctx context.Context, target Target) (Result, error) {
	start := now()
	commandLine := stringParam(target.ExtraConfig, "command_line", "")
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return Result{
			Status:      store.StatusError,
			ResultText:  "command_line is empty",
			TimeElapsed: time.Since(start),
			Timestamp:   now(),
		}, nil
	}

	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	output, err := cmd.CombinedOutput()
	elapsed := time.Since(start)

	status := store.StatusOK
	if err != nil {
		status = store.StatusCritical
	}

	return Result{
		Status:      status,
		ResultText:  string(output),
		TimeElapsed: elapsed,
		Timestamp:   now(),
	}, nil
}
