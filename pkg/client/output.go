package client

import (
	"context"
	"errors"
	"fmt"
	"os"

	"cwlclient/pkg/apperrors"
	"cwlclient/pkg/webdav"
)

// OutputFile is a lazy reference to a remote output artifact. It holds only
// the artifact's location; every accessor performs a fresh remote fetch, so
// a handle always reflects the current state of the service. If the owning
// job is deleted between calls, accessors fail with the missing-output
// condition.
type OutputFile struct {
	location string
	dav      *webdav.Client
	service  *Service // non-owning, for metrics only; may be nil
}

func newOutputFile(location string, service *Service) *OutputFile {
	return &OutputFile{
		location: location,
		dav:      service.dav,
		service:  service,
	}
}

// NewOutputFile creates a handle for an output at the given location, using
// its own HTTP transport. Handles produced by Job.Outputs share the owning
// service's transport instead.
func NewOutputFile(location string) *OutputFile {
	return &OutputFile{
		location: location,
		dav:      webdav.NewClient(nil),
	}
}

// Location returns the remote URI of the output.
func (o *OutputFile) Location() string { return o.location }

// Content fetches the output and returns its raw bytes.
func (o *OutputFile) Content(ctx context.Context) ([]byte, error) {
	data, _, err := o.dav.Get(ctx, o.location)
	if err != nil {
		return nil, o.mapError(err)
	}
	o.recordDownload(ctx)
	return data, nil
}

// Text fetches the output and decodes it using the declared encoding.
func (o *OutputFile) Text(ctx context.Context) (string, error) {
	data, contentType, err := o.dav.Get(ctx, o.location)
	if err != nil {
		return "", o.mapError(err)
	}
	o.recordDownload(ctx)
	return webdav.DecodeText(data, contentType), nil
}

// SaveAs fetches the output and writes it byte-for-byte to localPath.
func (o *OutputFile) SaveAs(ctx context.Context, localPath string) error {
	data, err := o.Content(ctx)
	if err != nil {
		return err
	}
	if err := os.WriteFile(localPath, data, 0o644); err != nil {
		return fmt.Errorf("saving output to %s: %w", localPath, err)
	}
	return nil
}

func (o *OutputFile) mapError(err error) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		return apperrors.MissingOutput(o.location)
	}
	return err
}

func (o *OutputFile) recordDownload(ctx context.Context) {
	if o.service != nil {
		o.service.metrics.RecordDownload(ctx)
	}
}
