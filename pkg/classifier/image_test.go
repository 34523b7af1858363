package classifier

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewImage(t *testing.T) {
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

	tests := []struct {
		name     string
		data     []byte
		wantMIME string
		wantErr  error
	}{
		{name: "png", data: pngHeader, wantMIME: "image/png"},
		{name: "jpeg", data: jpeg, wantMIME: "image/jpeg"},
		{name: "plain text", data: []byte("just some words"), wantErr: ErrNotImage},
		{name: "empty", data: nil, wantErr: ErrNotImage},
		{name: "too large", data: append(append([]byte{}, pngHeader...), make([]byte, MaxImageBytes)...), wantErr: ErrImageTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := NewImage(tt.data)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, img)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMIME, img.MIMEType)
			assert.Equal(t, tt.data, img.Data)
		})
	}
}

func TestReadImage(t *testing.T) {
	img, err := ReadImage(bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MIMEType)

	_, err = ReadImage(bytes.NewReader(make([]byte, MaxImageBytes+10)))
	assert.ErrorIs(t, err, ErrImageTooLarge)
}
