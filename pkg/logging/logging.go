// Package logging configures the process-wide structured logger: JSON to
// stdout, fanned out to a daily log file when a log directory is set.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	slogmulti "github.com/samber/slog-multi"
)

// Setup builds the root logger and installs it as the slog default. The
// returned closer flushes and closes the log file, if any.
func Setup(logDir string, debug bool) (*slog.Logger, func() error, error) {
	var opts *slog.HandlerOptions
	if debug {
		opts = &slog.HandlerOptions{Level: slog.LevelDebug}
	}

	stdout := slog.NewJSONHandler(os.Stdout, opts)

	closer := func() error { return nil }
	var handler slog.Handler = stdout
	if logDir != "" {
		df, err := newDailyFile(logDir)
		if err != nil {
			return nil, nil, fmt.Errorf("logging: open log dir: %w", err)
		}
		handler = slogmulti.Fanout(stdout, slog.NewJSONHandler(df, opts))
		closer = df.Close
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, closer, nil
}

// dailyFile is an io.Writer that appends to <dir>/<yyyy-mm-dd>.log and
// switches files when the calendar day changes.
type dailyFile struct {
	mu  sync.Mutex
	dir string
	day string
	f   *os.File

	now func() time.Time
}

func newDailyFile(dir string) (*dailyFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	d := &dailyFile{dir: dir, now: time.Now}
	if err := d.rotate(d.now()); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *dailyFile) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if day := d.now().Format("2006-01-02"); day != d.day {
		if err := d.rotate(d.now()); err != nil {
			return 0, err
		}
	}
	return d.f.Write(p)
}

func (d *dailyFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

// rotate opens the file for the given day, closing the previous one.
// Caller holds d.mu.
func (d *dailyFile) rotate(t time.Time) error {
	day := t.Format("2006-01-02")
	f, err := os.OpenFile(filepath.Join(d.dir, day+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if d.f != nil {
		_ = d.f.Close()
	}
	d.f = f
	d.day = day
	return nil
}

var _ io.Writer = (*dailyFile)(nil)
