//go:build !unix

package render

import (
	"os"
	"os/exec"
)

func setProcessGroup(_ *exec.Cmd) {}

// there is no portable graceful termination, so both just kill the process
func terminate(p *os.Process) error {
	return p.Kill()
}

func kill(p *os.Process) error {
	return p.Kill()
}
