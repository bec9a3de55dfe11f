package waveform

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

func runTool(ctx context.Context, path string, args ...string) error {
	cmd := exec.CommandContext(ctx, path, args...)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %v: %w: %s", path, args, err, out.String())
	}
	return nil
}
