//go:build unix

package render

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// the renderer spawns helpers (pandoc, latex), run it in its own process
// group so they are signalled as well
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminate(p *os.Process) error {
	return unix.Kill(-p.Pid, unix.SIGTERM)
}

func kill(p *os.Process) error {
	return unix.Kill(-p.Pid, unix.SIGKILL)
}
