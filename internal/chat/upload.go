package chat

import (
	"context"
	"errors"
	"io"

	"github.com/google/uuid"

	"github.com/tutorllm/tutorllm/internal/transcript"
)

// Upload sends a document to the backend for ingestion, narrating progress
// in the transcript. The progress entry is a user-role message in the
// uploading phase, distinct from a streaming placeholder, so an active
// answer stream and an upload can be pending concurrently without ever
// targeting the same entry. The entry is addressed by its ID from creation,
// never found by scanning.
//
// On success the entry becomes an "uploaded" label and an assistant
// confirmation is appended; on failure it becomes a failure label and a
// generic server-error reply is appended. Either way the history list is
// refreshed afterward.
//
// The returned channel carries a single Done or Err event and is closed.
func (e *Engine) Upload(ctx context.Context, filename string, content io.Reader) (<-chan Event, error) {
	gen := e.store.Generation()
	entryID, err := e.store.Append(gen, transcript.Message{
		Role:  transcript.RoleUser,
		Text:  "Uploading " + filename + "...",
		Phase: transcript.PhaseUploading,
	})
	if err != nil {
		return nil, err
	}

	uploadCtx, cancel := context.WithTimeout(ctx, e.uploadTimeout)

	events := make(chan Event, 1)
	go func() {
		defer close(events)
		defer cancel()

		profile := e.Profile()

		// Associate with the current chat when one is assigned; an upload
		// never creates a chat by itself.
		e.mu.Lock()
		var chatID string
		if e.session.State == SessionAssigned {
			chatID = e.session.ID
		}
		e.mu.Unlock()

		ingestErr := e.backend.Ingest(uploadCtx, filename, content, profile.Email, chatID)

		if ingestErr != nil {
			e.mutateUploadEntry(gen, entryID, "Failed to upload "+filename, transcript.PhaseUploadFailed, uploadFailedReply)
			if !errIsContext(ingestErr) {
				e.logger.Warn("upload failed", "file", filename, "error", ingestErr)
			}
			events <- Event{Err: ingestErr}
		} else {
			e.mutateUploadEntry(gen, entryID, "Uploaded "+filename, transcript.PhaseUploaded, uploadedReply)
			e.logger.Info("upload ingested", "file", filename, "chat_id", chatID)
			events <- Event{Done: true}
		}

		e.TriggerHistoryRefresh()
	}()
	return events, nil
}

// mutateUploadEntry rewrites the upload's own entry and appends the
// assistant reply, both under the upload's generation: if the chat was
// switched meanwhile, the orphaned writes are discarded.
func (e *Engine) mutateUploadEntry(gen transcript.Generation, entryID uuid.UUID, label string, phase transcript.Phase, reply string) {
	err := e.store.Update(gen, entryID, func(m *transcript.Message) {
		m.Text = label
		m.Phase = phase
	})
	if err != nil {
		if !errors.Is(err, transcript.ErrStaleGeneration) {
			e.logger.Error("updating upload entry failed", "error", err)
		}
		return
	}
	if _, err := e.store.Append(gen, transcript.Message{
		Role:  transcript.RoleAssistant,
		Text:  reply,
		Phase: transcript.PhaseSettled,
	}); err != nil && !errors.Is(err, transcript.ErrStaleGeneration) {
		e.logger.Error("appending upload reply failed", "error", err)
	}
}
