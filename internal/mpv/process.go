package mpv

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"time"
)

// Process is an mpv instance launched by this package.
type Process struct {
	cmd *exec.Cmd
}

// Launch starts mpv in idle mode listening on socket and waits for the
// socket to accept connections.
func Launch(ctx context.Context, binary, socket string) (*Process, error) {
	_ = os.Remove(socket)

	cmd := exec.Command(binary,
		"--idle=yes",
		"--no-terminal",
		"--input-ipc-server="+socket,
	)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start mpv: %w", err)
	}

	p := &Process{cmd: cmd}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.Dial("unix", socket)
		if err == nil {
			conn.Close()
			return p, nil
		}
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}

	_ = p.Stop()
	return nil, fmt.Errorf("mpv did not open %s", socket)
}

// Stop kills the process and reaps it.
func (p *Process) Stop() error {
	if p.cmd.Process == nil {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil {
		return err
	}
	_ = p.cmd.Wait()
	return nil
}
