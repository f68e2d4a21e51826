package appointment

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jwalitptl/carebook-api/pkg/errors"
)

// Upload is one attachment file received with a request.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

var allowedAttachmentTypes = map[string][]string{
	".jpg":  {"image/jpeg"},
	".jpeg": {"image/jpeg"},
	".png":  {"image/png"},
	".gif":  {"image/gif"},
	".webp": {"image/webp"},
	".pdf":  {"application/pdf"},
	".doc":  {"application/msword"},
	".docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
}

// validateUploads checks count, size and type before anything is stored.
// existing is the number of attachments already on the appointment.
func (s *Service) validateUploads(existing int, uploads []Upload) error {
	if existing+len(uploads) > s.config.MaxAttachments {
		return errors.NewBadRequest(fmt.Sprintf("an appointment can have at most %d attachments", s.config.MaxAttachments), nil)
	}
	for _, u := range uploads {
		if u.Size > s.config.MaxAttachmentBytes {
			return errors.NewBadRequest(fmt.Sprintf("attachment %q exceeds %d bytes", u.Filename, s.config.MaxAttachmentBytes), nil)
		}
		if !allowedAttachment(u.Filename, u.ContentType) {
			return errors.NewBadRequest(fmt.Sprintf("attachment %q must be an image, PDF or Word document", u.Filename), nil)
		}
	}
	return nil
}

func allowedAttachment(filename, contentType string) bool {
	types, ok := allowedAttachmentTypes[strings.ToLower(filepath.Ext(filename))]
	if !ok {
		return false
	}
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	for _, t := range types {
		if t == mediaType {
			return true
		}
	}
	return false
}

// storeUploads writes uploads under the appointment's prefix and returns
// their keys. On failure the blobs already written are removed.
func (s *Service) storeUploads(ctx context.Context, appointmentID uuid.UUID, uploads []Upload) (pq.StringArray, error) {
	keys := make(pq.StringArray, 0, len(uploads))
	for _, u := range uploads {
		key := fmt.Sprintf("appointments/%s/%s%s", appointmentID, uuid.NewString(), strings.ToLower(filepath.Ext(u.Filename)))
		if err := s.blobs.Put(ctx, key, u.Body, u.Size, u.ContentType); err != nil {
			s.removeBlobs(ctx, appointmentID, keys)
			return nil, errors.NewInternal(fmt.Errorf("failed to store attachment: %w", err))
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// removeBlobs deletes blobs best effort; failures are only logged.
func (s *Service) removeBlobs(ctx context.Context, appointmentID uuid.UUID, keys []string) {
	for _, key := range keys {
		if err := s.blobs.Delete(ctx, key); err != nil {
			s.logger.Error(err, "Failed to delete attachment",
				"appointment_id", appointmentID.String(),
				"key", key)
		}
	}
}
