package observability

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunLog is the append-only, human-readable record of one execution.
// It is created at process start, closed at process end and never read back.
type RunLog struct {
	ID      string
	Path    string
	Started time.Time

	mu   sync.Mutex
	file *os.File
}

// OpenRunLog creates <dir>/run_<YYYY-MM-DD_HH-MM-SS>.log.
func OpenRunLog(dir string, started time.Time) (*RunLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("run_%s.log", started.Format("2006-01-02_15-04-05")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}

	rl := &RunLog{
		ID:      uuid.NewString(),
		Path:    path,
		Started: started,
		file:    f,
	}
	if _, err := fmt.Fprintf(f, "Logging to file: %s\nRun: %s\n%s\n", path, rl.ID, strings.Repeat("=", 80)); err != nil {
		f.Close()
		return nil, fmt.Errorf("write run log header: %w", err)
	}
	return rl, nil
}

// Write implements io.Writer. Writes are serialized so concurrent artifact
// workers never interleave partial lines.
func (r *RunLog) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return 0, os.ErrClosed
	}
	return r.file.Write(p)
}

// Close writes the closing footer and closes the file.
func (r *RunLog) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}

	fmt.Fprintf(r.file, "%s\nPipeline start: %s\nTotal time: %.2fs\nLog file saved at: %s\n",
		strings.Repeat("=", 80),
		r.Started.Format(time.DateTime),
		time.Since(r.Started).Seconds(),
		r.Path)

	err := r.file.Close()
	r.file = nil
	return err
}
