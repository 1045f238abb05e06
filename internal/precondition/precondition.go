package precondition

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/sirupsen/logrus"
)

// ErrPrecondition is returned when the host is not fit to run a command.
// Nothing has been read from the settings store when it is returned.
var ErrPrecondition = errors.New("precondition failed")

// Checks describes what must hold before any command runs
type Checks struct {
	StorePath       string
	CreateIfMissing bool
	DataDir         string
	MinFreeMB       uint64
}

// DiskUsage reports free bytes for a path
type DiskUsage func(path string) (uint64, error)

// Gate runs the precondition checks
type Gate struct {
	usage  DiskUsage
	logger *logrus.Logger
}

// NewGate creates a gate measuring free space with gopsutil
func NewGate(logger *logrus.Logger) *Gate {
	if logger == nil {
		logger = logrus.New()
	}
	return &Gate{usage: gopsutilFree, logger: logger}
}

func gopsutilFree(path string) (uint64, error) {
	stat, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return stat.Free, nil
}

// Check verifies the settings store is reachable and the data directory
// can take new backups.
func (g *Gate) Check(c Checks) error {
	info, err := os.Stat(c.StorePath)
	switch {
	case err == nil && info.IsDir():
		return fmt.Errorf("%w: settings store %s is a directory", ErrPrecondition, c.StorePath)
	case os.IsNotExist(err) && !c.CreateIfMissing:
		return fmt.Errorf("%w: settings store %s does not exist", ErrPrecondition, c.StorePath)
	case err != nil && !os.IsNotExist(err):
		return fmt.Errorf("%w: cannot access settings store: %v", ErrPrecondition, err)
	}

	probe, err := os.CreateTemp(c.DataDir, ".guardctl-probe-*")
	if err != nil {
		return fmt.Errorf("%w: data directory %s is not writable: %v", ErrPrecondition, c.DataDir, err)
	}
	probe.Close()
	os.Remove(probe.Name())

	if c.MinFreeMB > 0 {
		free, err := g.usage(c.DataDir)
		if err != nil {
			// not every filesystem reports usage; do not block on it
			g.logger.WithError(err).WithField("path", c.DataDir).Warn("Could not determine free disk space")
		} else if free < c.MinFreeMB*1024*1024 {
			return fmt.Errorf("%w: %s has %d MB free, need at least %d MB",
				ErrPrecondition, filepath.Clean(c.DataDir), free/(1024*1024), c.MinFreeMB)
		}
	}

	g.logger.WithFields(logrus.Fields{
		"store":    c.StorePath,
		"data_dir": c.DataDir,
	}).Debug("Preconditions satisfied")
	return nil
}
