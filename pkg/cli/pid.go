//go:build !windows

package cli

import (
	"fmt"
	"os"
	"syscall"

	"github.com/replicate/splitget/pkg/logging"
)

type PIDFile struct {
	file *os.File
	fd   int
}

func NewPIDFile(path string) (*PIDFile, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	return &PIDFile{file: file, fd: int(file.Fd())}, nil
}

// AcquirePIDFile locks the PID file at path and returns a func that unlocks
// and removes it. An empty path is a no-op.
func AcquirePIDFile(path string) (release func(), err error) {
	if path == "" {
		return func() {}, nil
	}
	pid, err := NewPIDFile(path)
	if err != nil {
		return nil, err
	}
	if err := pid.Acquire(); err != nil {
		pid.file.Close()
		return nil, err
	}
	return func() {
		if err := pid.Release(); err != nil {
			logger := logging.GetLogger()
			logger.Warn().Err(err).Str("pid_file", path).Msg("Release PID file")
		}
	}, nil
}

func (p *PIDFile) Acquire() error {
	logger := logging.GetLogger()
	funcs := []func() error{
		func() error {
			logger.Debug().Str("blocking_lock_acquire", "false").Msg("Waiting on Lock")
			err := syscall.Flock(p.fd, syscall.LOCK_EX|syscall.LOCK_NB)
			if err != nil {
				logger.Warn().
					Err(err).
					Str("message", "Another splitget process may be running, use 'splitget multifile' to download multiple files in parallel").
					Msg("Waiting on Lock")
				logger.Debug().Str("blocking_lock_acquire", "true").Msg("Waiting on Lock")
				err = syscall.Flock(p.fd, syscall.LOCK_EX)
			}
			return err
		},
		func() error { return p.file.Truncate(0) },
		p.writePID,
		p.file.Sync,
	}
	return p.executeFuncs(funcs)
}

func (p *PIDFile) Release() error {
	funcs := []func() error{
		func() error { return os.Remove(p.file.Name()) },
		func() error { return syscall.Flock(p.fd, syscall.LOCK_UN) },
		p.file.Close,
	}
	return p.executeFuncs(funcs)
}

func (p *PIDFile) writePID() error {
	pid := os.Getpid()
	_, err := p.file.WriteAt([]byte(fmt.Sprintf("%d", pid)), 0)
	return err
}

func (p *PIDFile) executeFuncs(funcs []func() error) error {
	for _, fn := range funcs {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}
