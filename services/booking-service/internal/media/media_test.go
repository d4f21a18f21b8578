package media

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSniffReplaysImage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	want := buf.Bytes()

	r, ct, err := Sniff(bytes.NewReader(want))
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSniffRejectsNonImage(t *testing.T) {
	_, ct, err := Sniff(strings.NewReader("hello, not an image"))
	assert.ErrorIs(t, err, ErrUnsupportedImage)
	assert.Contains(t, ct, "text/plain")
}

func TestDisabledUploader(t *testing.T) {
	_, err := Disabled{}.Upload(context.Background(), strings.NewReader(""))
	assert.ErrorIs(t, err, ErrDisabled)
}
