package command

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superheroes-club/luz-engine/internal/application/access"
	"github.com/superheroes-club/luz-engine/internal/domain/mission"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
)

type fakeProofStore struct {
	keys         []string
	contentTypes []string
	err          error
}

func (s *fakeProofStore) Put(_ context.Context, key, contentType string, _ []byte) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.keys = append(s.keys, key)
	s.contentTypes = append(s.contentTypes, contentType)
	return "s3://proofs/" + key, nil
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestUploadProof_StoresPhoto(t *testing.T) {
	store := &fakeProofStore{}
	h := NewUploadProofHandler(store, 0, shared.FixedClock{T: testNow}, nil)

	res, err := h.Handle(context.Background(), UploadProofCommand{
		Actor:    parent,
		Kind:     "PHOTO",
		Filename: "Abrazo.JPG",
		Data:     pngHeader,
	})
	require.NoError(t, err)

	assert.Equal(t, mission.ProofPhoto, res.Kind)
	assert.Equal(t, len(pngHeader), res.Bytes)
	require.Len(t, store.keys, 1)
	assert.True(t, strings.HasPrefix(store.keys[0], "proofs/guardian-1/2026/03/"), store.keys[0])
	assert.True(t, strings.HasSuffix(store.keys[0], ".jpg"))
	assert.Equal(t, "image/png", store.contentTypes[0])
	assert.Equal(t, "s3://proofs/"+store.keys[0], res.ProofRef)
}

func TestUploadProof_Rejections(t *testing.T) {
	tests := []struct {
		name string
		cmd  UploadProofCommand
		want error
	}{
		{"anonymous", UploadProofCommand{Kind: "photo", Data: pngHeader}, shared.ErrUnauthorized},
		{"unknown kind", UploadProofCommand{Actor: parent, Kind: "drawing", Data: pngHeader}, shared.ErrValidation},
		{"empty", UploadProofCommand{Actor: parent, Kind: "photo"}, shared.ErrValidation},
		{"too large", UploadProofCommand{Actor: parent, Kind: "photo", Data: make([]byte, 65)}, shared.ErrValidation},
		{"wrong family", UploadProofCommand{Actor: parent, Kind: "audio", Data: pngHeader}, shared.ErrValidation},
		{"html", UploadProofCommand{Actor: parent, Kind: "photo", Data: []byte("<html><body>hi</body></html>")}, shared.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeProofStore{}
			h := NewUploadProofHandler(store, 64, nil, nil)

			_, err := h.Handle(context.Background(), tt.cmd)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, store.keys)
		})
	}
}

func TestUploadProof_StoreFailure(t *testing.T) {
	boom := errors.New("bucket unavailable")
	h := NewUploadProofHandler(&fakeProofStore{err: boom}, 0, nil, nil)

	_, err := h.Handle(context.Background(), UploadProofCommand{
		Actor: access.Actor{UserID: "admin-1", Role: access.RoleAdmin},
		Kind:  "photo",
		Data:  pngHeader,
	})
	assert.ErrorIs(t, err, boom)
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".mp4", extension("clip.MP4"))
	assert.Equal(t, "", extension("noext"))
	assert.Equal(t, "", extension("weird.j$g"))
	assert.Equal(t, "", extension("long.extension"))
}
