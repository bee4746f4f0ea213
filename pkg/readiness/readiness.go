// Package readiness publishes and waits for the file a running mock writes once its bus names
// are owned.
package readiness

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/renameio/v2"
	"vawter.tech/stopper"

	"github.com/core-tools/hsu-sysmock/pkg/errors"
)

const (
	FileMode = 0o644
	DirMode  = 0o755

	stopGracePeriod = 100 * time.Millisecond
)

// Info is the content of a ready file.
type Info struct {
	PID   int
	Bus   string
	Units int
}

// Encode renders the line-based key=value form.
func (i Info) Encode() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "pid=%d\n", i.PID)
	fmt.Fprintf(&buf, "bus=%s\n", i.Bus)
	fmt.Fprintf(&buf, "units=%d\n", i.Units)
	return buf.Bytes()
}

// Parse reads the key=value form. Unknown keys are ignored.
func Parse(data []byte) (*Info, error) {
	info := &Info{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			return nil, errors.NewValidationError("malformed ready file line", nil).WithContext("line", line)
		}

		var err error
		switch key {
		case "pid":
			info.PID, err = strconv.Atoi(value)
		case "bus":
			info.Bus = value
		case "units":
			info.Units, err = strconv.Atoi(value)
		}
		if err != nil {
			return nil, errors.NewValidationError("invalid ready file value", err).WithContext("key", key).WithContext("value", value)
		}
	}
	return info, nil
}

// Write replaces the file atomically, so a reader never sees a partial file.
func Write(path string, info Info) error {
	if err := os.MkdirAll(filepath.Dir(path), DirMode); err != nil {
		return errors.NewIOError("failed to create ready file directory", err).WithContext("ready_file", path)
	}
	if err := renameio.WriteFile(path, info.Encode(), FileMode); err != nil {
		return errors.NewIOError("failed to write ready file", err).WithContext("ready_file", path)
	}
	return nil
}

// Remove deletes the file; a missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.NewIOError("failed to remove ready file", err).WithContext("ready_file", path)
	}
	return nil
}

func Read(path string) (*Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("ready file does not exist", err).WithContext("ready_file", path)
		}
		return nil, errors.NewIOError("failed to read ready file", err).WithContext("ready_file", path)
	}
	return Parse(data)
}

// Wait blocks until the file exists and returns its content. The parent directory must exist.
func Wait(ctx context.Context, path string) (*Info, error) {
	path = filepath.Clean(path)
	dir := filepath.Dir(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.NewIOError("failed to create file watcher", err)
	}
	// watch before the first read so a write in between is not missed
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, errors.NewIOError("failed to watch ready file directory", err).WithContext("directory", dir)
	}

	sctx := stopper.WithContext(ctx)
	sctx.Defer(func() {
		_ = watcher.Close()
	})
	defer func() {
		sctx.Stop(stopGracePeriod)
		_ = sctx.Wait()
	}()

	if info, err := Read(path); err == nil {
		return info, nil
	} else if !errors.IsNotFoundError(err) {
		return nil, err
	}

	found := make(chan *Info, 1)
	failed := make(chan error, 1)

	sctx.Go(func(sctx *stopper.Context) error {
		for {
			select {
			case <-sctx.Stopping():
				return nil

			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if filepath.Clean(event.Name) != path || !event.Has(fsnotify.Create|fsnotify.Write|fsnotify.Rename) {
					continue
				}
				info, err := Read(path)
				if errors.IsNotFoundError(err) {
					continue
				}
				if err != nil {
					failed <- err
					return nil
				}
				found <- info
				return nil

			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				failed <- errors.NewIOError("file watcher failed", err).WithContext("ready_file", path)
				return nil
			}
		}
	})

	select {
	case info := <-found:
		return info, nil
	case err := <-failed:
		return nil, err
	case <-ctx.Done():
		return nil, errors.NewCancelledError("gave up waiting for ready file", ctx.Err()).WithContext("ready_file", path)
	}
}
