package classifier

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MaxImageBytes caps inline image payloads.
const MaxImageBytes = 15 << 20

var (
	// ErrNotImage means the uploaded payload is not a recognised image.
	ErrNotImage = errors.New("please upload an image file (JPG, PNG)")
	// ErrImageTooLarge means the payload exceeds MaxImageBytes.
	ErrImageTooLarge = fmt.Errorf("image exceeds %d MB", MaxImageBytes>>20)
)

// Image is an inline image payload.
type Image struct {
	MIMEType string
	Data     []byte
}

// NewImage sniffs data and accepts it only if it is an image.
func NewImage(data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, ErrNotImage
	}
	if len(data) > MaxImageBytes {
		return nil, ErrImageTooLarge
	}
	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return nil, fmt.Errorf("%w: got %s", ErrNotImage, mtype.String())
	}
	// Drop parameters such as charset; the endpoint wants a bare type.
	base, _, _ := strings.Cut(mtype.String(), ";")
	return &Image{MIMEType: base, Data: data}, nil
}

// ReadImage reads at most MaxImageBytes+1 bytes from r and calls NewImage.
func ReadImage(r io.Reader) (*Image, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return NewImage(data)
}
