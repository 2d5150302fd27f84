// Package file implements the file delivery sink: digests are appended to
// the destination path, separated by a header line.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/briefwire/briefwire/internal/producer"
	"github.com/briefwire/briefwire/internal/sink"
	"github.com/briefwire/briefwire/internal/task"
)

// Sink appends digests to files on the local filesystem.
type Sink struct {
	baseDir string
}

// Compile-time interface check.
var _ sink.Sink = (*Sink)(nil)

// New creates a file sink. Relative destination targets are resolved
// under baseDir when it is non-empty.
func New(baseDir string) *Sink { return &Sink{baseDir: baseDir} }

// Kind implements sink.Sink.
func (s *Sink) Kind() task.DestinationKind { return task.DestFile }

// Deliver implements sink.Sink. The destination target is a file path;
// missing parent directories are created.
func (s *Sink) Deliver(_ context.Context, a producer.Artifact, dest task.Destination) sink.Outcome {
	if dest.Target == "" {
		return sink.Outcome{Message: "empty file path"}
	}
	target := dest.Target
	if s.baseDir != "" && !filepath.IsAbs(target) {
		target = filepath.Join(s.baseDir, target)
	}
	dest.Target = target

	if dir := filepath.Dir(dest.Target); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return sink.Outcome{Message: fmt.Sprintf("create directory: %v", err)}
		}
	}

	f, err := os.OpenFile(dest.Target, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return sink.Outcome{Message: fmt.Sprintf("open: %v", err)}
	}
	defer func() { _ = f.Close() }()

	header := fmt.Sprintf("--- %s | %s | %d items ---\n",
		a.ProducedAt.Format(time.RFC3339), a.Title, a.ItemCount)
	if _, err := f.WriteString(header + a.Body + "\n\n"); err != nil {
		return sink.Outcome{Message: fmt.Sprintf("write: %v", err)}
	}

	return sink.Outcome{Success: true, Message: "appended to " + dest.Target}
}
