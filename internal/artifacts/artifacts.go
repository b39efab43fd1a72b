// Package artifacts stores screenshots captured during a run.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/kuitang/smokerun/internal/errs"
	"github.com/kuitang/smokerun/internal/s3client"
)

const pngContentType = "image/png"

// Artifact identifies one captured file.
type Artifact struct {
	Scenario string
	// Path is relative to the output directory, e.g. "marketplace.png".
	Path string
}

// Sink persists artifacts and returns where each one went.
type Sink interface {
	Save(ctx context.Context, a Artifact, data []byte) (string, error)
}

// FileSink writes artifacts under Dir, overwriting earlier runs.
type FileSink struct {
	Dir string
}

// Save writes data to Dir/a.Path.
func (s FileSink) Save(_ context.Context, a Artifact, data []byte) (string, error) {
	target := filepath.Join(s.Dir, filepath.FromSlash(a.Path))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", errs.Wrap(errs.Internal, "create artifact directory", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", errs.Wrap(errs.Internal, "write "+target, err)
	}
	return target, nil
}

// S3Sink mirrors artifacts into a bucket as <prefix>/<scenario>/<path>.
type S3Sink struct {
	Client *s3client.Client
}

// Save uploads data.
func (s S3Sink) Save(ctx context.Context, a Artifact, data []byte) (string, error) {
	key, err := s.Client.PutObject(ctx, path.Join(a.Scenario, a.Path), data, pngContentType)
	if err != nil {
		return "", errs.Wrap(errs.Unavailable, "upload artifact", err)
	}
	return s.Client.URI(key), nil
}

// Multi saves to every sink in order. A failing sink does not stop later ones.
type Multi []Sink

// SaveAll returns every location written and the joined errors.
func (m Multi) SaveAll(ctx context.Context, a Artifact, data []byte) ([]string, error) {
	var (
		locations []string
		failures  []error
	)
	for _, sink := range m {
		loc, err := sink.Save(ctx, a, data)
		if err != nil {
			failures = append(failures, err)
			continue
		}
		locations = append(locations, loc)
	}
	if len(failures) > 0 {
		return locations, fmt.Errorf("save %s: %w", a.Path, errors.Join(failures...))
	}
	return locations, nil
}
