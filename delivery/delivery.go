// Package delivery hands finished artifacts to the user: as a file download
// or by email.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/glowupstudio/booth/compose"
)

// ErrNoArtifact is returned when there is nothing to deliver.
var ErrNoArtifact = errors.New("delivery: no artifact")

// ServeDownload writes artifact as an attachment under its suggested
// filename. HEAD requests get the headers only.
func ServeDownload(w http.ResponseWriter, r *http.Request, artifact compose.Artifact) error {
	if len(artifact.Data) == 0 {
		return ErrNoArtifact
	}
	name := artifact.Filename
	if name == "" {
		name = "download"
	}
	h := w.Header()
	h.Set("Content-Type", artifact.MIMEType)
	h.Set("Content-Length", strconv.Itoa(len(artifact.Data)))
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return nil
	}
	_, err := w.Write(artifact.Data)
	return err
}

// EmailSender sends an artifact to an address.
type EmailSender interface {
	Send(ctx context.Context, artifact compose.Artifact, address string) error
}

// Delivery is one completed send.
type Delivery struct {
	Address  string
	Filename string
	MIMEType string
	Size     int
	SentAt   time.Time
}

// Outbox records completed deliveries.
type Outbox interface {
	Record(ctx context.Context, d Delivery) error
}

// Failure is a send error. Retryable failures may succeed when sent again
// unchanged; the others need a different address.
type Failure struct {
	Address   string
	Err       error
	Retryable bool
}

func (f *Failure) Error() string {
	return fmt.Sprintf("delivery to %q failed: %v", f.Address, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }
