package gcs

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	buf      bytes.Buffer
	closeErr error
	closed   bool
}

func (w *fakeWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *fakeWriter) Close() error {
	w.closed = true
	return w.closeErr
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)
}

func TestPutObjectWritesBucketURI(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	var gotType string
	s := &BlobStore{
		bucket: "osv-media",
		newWriter: func(_ context.Context, _, _, contentType string) objectWriter {
			gotType = contentType
			return w
		},
	}
	uri, err := s.PutObject(context.Background(), "vessels/v1/a.pdf", "application/pdf", []byte("pdf"))
	require.NoError(t, err)
	require.Equal(t, "gs://osv-media/vessels/v1/a.pdf", uri)
	require.Equal(t, "pdf", w.buf.String())
	require.Equal(t, "application/pdf", gotType)
	require.True(t, w.closed)
}

func TestPutObjectCloseError(t *testing.T) {
	t.Parallel()

	s := &BlobStore{
		bucket: "osv-media",
		newWriter: func(context.Context, string, string, string) objectWriter {
			return &fakeWriter{closeErr: errors.New("quota")}
		},
	}
	_, err := s.PutObject(context.Background(), "p", "", []byte("x"))
	require.ErrorContains(t, err, "quota")

	_, err = s.PutObject(context.Background(), "", "", nil)
	require.Error(t, err)
}
