package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObject(t *testing.T) {
	t.Parallel()

	s := NewBlobStore()
	data := []byte("%PDF-1.4")
	uri, err := s.PutObject(context.Background(), "vessels/v1/abc.pdf", "application/pdf", data)
	require.NoError(t, err)
	require.Equal(t, "memory://vessels/v1/abc.pdf", uri)

	data[0] = 'X'
	got, ct, ok := s.Object("vessels/v1/abc.pdf")
	require.True(t, ok)
	require.Equal(t, "%PDF-1.4", string(got))
	require.Equal(t, "application/pdf", ct)
	require.Equal(t, 1, s.Len())

	_, err = s.PutObject(context.Background(), " ", "", nil)
	require.Error(t, err)
}
