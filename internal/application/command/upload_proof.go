package command

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/superheroes-club/luz-engine/internal/application/access"
	"github.com/superheroes-club/luz-engine/internal/domain/mission"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
	"github.com/superheroes-club/luz-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPLOAD PROOF COMMAND
// Stores raw proof media and returns the opaque reference a submission cites.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultMaxProofBytes caps a single proof file.
const DefaultMaxProofBytes = 25 << 20

// ProofStore persists proof media and returns its URI.
type ProofStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// UploadProofCommand carries one proof file.
type UploadProofCommand struct {
	Actor    access.Actor
	Kind     string
	Filename string
	Data     []byte
}

// UploadProofResult is returned to the client.
type UploadProofResult struct {
	ProofRef string            `json:"proofRef"`
	Kind     mission.ProofKind `json:"kind"`
	Bytes    int               `json:"bytes"`
}

// UploadProofHandler handles UploadProofCommand.
type UploadProofHandler struct {
	store    ProofStore
	maxBytes int
	clock    shared.Clock
	log      *logger.Logger
}

// NewUploadProofHandler creates a new UploadProofHandler. maxBytes <= 0
// selects DefaultMaxProofBytes.
func NewUploadProofHandler(store ProofStore, maxBytes int, clock shared.Clock, log *logger.Logger) *UploadProofHandler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxProofBytes
	}
	return &UploadProofHandler{
		store:    store,
		maxBytes: maxBytes,
		clock:    orSystemClock(clock),
		log:      orNop(log).With(logger.Component("upload_proof")),
	}
}

// Handle validates and stores the file.
func (h *UploadProofHandler) Handle(ctx context.Context, cmd UploadProofCommand) (*UploadProofResult, error) {
	if err := cmd.Actor.Validate(); err != nil {
		return nil, err
	}
	kind, err := mission.ParseProofKind(cmd.Kind)
	if err != nil {
		return nil, err
	}
	if len(cmd.Data) == 0 {
		return nil, shared.NewDomainError("upload", "Upload", shared.ErrValidation, "file is empty")
	}
	if len(cmd.Data) > h.maxBytes {
		return nil, shared.NewDomainError("upload", "Upload", shared.ErrValidation,
			fmt.Sprintf("file exceeds %d bytes", h.maxBytes)).
			WithDetail("maxBytes", h.maxBytes)
	}

	contentType := http.DetectContentType(cmd.Data)
	if !matchesKind(kind, contentType) {
		return nil, shared.NewDomainError("upload", "Upload", shared.ErrValidation,
			fmt.Sprintf("content type %s does not match proof kind %s", contentType, kind))
	}

	now := h.clock.Now()
	key := fmt.Sprintf("proofs/%s/%04d/%02d/%s%s",
		cmd.Actor.UserID, now.Year(), int(now.Month()), shared.NewID(), extension(cmd.Filename))

	ref, err := h.store.Put(ctx, key, contentType, bytes.Clone(cmd.Data))
	if err != nil {
		h.log.Error("proof upload failed", logger.String("key", key), logger.Err(err))
		return nil, fmt.Errorf("store proof: %w", err)
	}

	h.log.Info("proof uploaded",
		logger.String("key", key),
		logger.String("kind", string(kind)),
		logger.Int("bytes", len(cmd.Data)),
	)
	return &UploadProofResult{ProofRef: ref, Kind: kind, Bytes: len(cmd.Data)}, nil
}

// matchesKind compares the sniffed media family with the declared kind.
// Containers the sniffer cannot classify are accepted.
func matchesKind(kind mission.ProofKind, contentType string) bool {
	switch {
	case strings.HasPrefix(contentType, "application/octet-stream"),
		strings.HasPrefix(contentType, "application/ogg"):
		return true
	case strings.HasPrefix(contentType, "image/"):
		return kind == mission.ProofPhoto
	case strings.HasPrefix(contentType, "video/"):
		return kind == mission.ProofVideo
	case strings.HasPrefix(contentType, "audio/"):
		return kind == mission.ProofAudio
	}
	return false
}

func extension(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if len(ext) < 2 || len(ext) > 6 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
