// Package media stores doctor profile images in the blob store.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
)

const MaxImageBytes = 5 << 20

var (
	ErrDisabled         = errors.New("image upload is not configured")
	ErrUnsupportedImage = errors.New("unsupported image type")
)

var imageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// Uploader stores an image and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, r io.Reader) (string, error)
}

// Sniff reads the head of r to check it is an image and returns a reader
// that replays the full content.
func Sniff(r io.Reader) (io.Reader, string, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, "", err
	}
	head = head[:n]
	ct := http.DetectContentType(head)
	if !imageTypes[ct] {
		return nil, ct, ErrUnsupportedImage
	}
	return io.MultiReader(bytes.NewReader(head), r), ct, nil
}

type Cloudinary struct {
	cld    *cloudinary.Cloudinary
	folder string
}

// NewCloudinary configures the client from a cloudinary:// URL.
func NewCloudinary(url, folder string) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromURL(url)
	if err != nil {
		return nil, fmt.Errorf("cloudinary config: %w", err)
	}
	cld.Config.URL.Secure = true
	if folder == "" {
		folder = "doctor-profiles"
	}
	return &Cloudinary{cld: cld, folder: folder}, nil
}

func (c *Cloudinary) Upload(ctx context.Context, r io.Reader) (string, error) {
	res, err := c.cld.Upload.Upload(ctx, r, uploader.UploadParams{
		Folder:       c.folder,
		PublicID:     uuid.NewString(),
		ResourceType: "image",
	})
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	if res.Error.Message != "" {
		return "", fmt.Errorf("upload image: %s", res.Error.Message)
	}
	if res.SecureURL == "" {
		return "", errors.New("upload image: no url returned")
	}
	return res.SecureURL, nil
}

// Disabled rejects every upload. Used when CLOUDINARY_URL is unset.
type Disabled struct{}

func (Disabled) Upload(context.Context, io.Reader) (string, error) { return "", ErrDisabled }
