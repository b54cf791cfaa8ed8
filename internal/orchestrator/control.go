package orchestrator

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// ControlFiles locates the PAUSE/STOP signal files and the session pid
// file under <project>/.loki/.
type ControlFiles struct {
	Dir string
}

func (c ControlFiles) pausePath() string { return filepath.Join(c.Dir, "PAUSE") }
func (c ControlFiles) stopPath() string  { return filepath.Join(c.Dir, "STOP") }
func (c ControlFiles) pidPath() string   { return filepath.Join(c.Dir, "session.pid") }

// IsStopped reports whether a STOP control file is present.
func (c ControlFiles) IsStopped() bool {
	_, err := os.Stat(c.stopPath())
	return err == nil
}

// IsPaused reports whether a PAUSE control file is present.
func (c ControlFiles) IsPaused() bool {
	_, err := os.Stat(c.pausePath())
	return err == nil
}

// WritePID records the current process id, ASCII, for liveness checks by
// other tools.
func (c ControlFiles) WritePID(pid int) error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(c.pidPath(), []byte(strconv.Itoa(pid)), 0o644)
}

// signal writes a control file (PAUSE or STOP); its mere existence is the
// signal, content is an informational timestamp.
func (c ControlFiles) signal(path string, now time.Time) error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(now.UTC().Format(time.RFC3339)), 0o644)
}

// RequestStop creates the STOP control file.
func (c ControlFiles) RequestStop(now time.Time) error { return c.signal(c.stopPath(), now) }

// RequestPause creates the PAUSE control file.
func (c ControlFiles) RequestPause(now time.Time) error { return c.signal(c.pausePath(), now) }

// ClearPause removes the PAUSE control file, allowing the loop to resume.
func (c ControlFiles) ClearPause() error {
	err := os.Remove(c.pausePath())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
