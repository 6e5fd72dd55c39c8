package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Soumit27/eazzgrievnce/pkg/apperror"
)

func TestDetectProofType(t *testing.T) {
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
	png := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D}
	pdf := []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")

	mime, ext, err := DetectProofType(jpeg)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mime)
	assert.Equal(t, "jpg", ext)

	mime, ext, err = DetectProofType(png)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)
	assert.Equal(t, "png", ext)

	mime, _, err = DetectProofType(pdf)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", mime)
}

func TestDetectProofType_Rejects(t *testing.T) {
	gif := []byte("GIF89a\x01\x00\x01\x00")
	_, _, err := DetectProofType(gif)
	assert.True(t, apperror.IsValidation(err))

	_, _, err = DetectProofType([]byte("just some text"))
	assert.True(t, apperror.IsValidation(err))

	_, _, err = DetectProofType(nil)
	assert.True(t, apperror.IsValidation(err))
}
