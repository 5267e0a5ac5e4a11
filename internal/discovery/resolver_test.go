package discovery

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/osvhub/osv-discovery/internal/vessel"
)

func TestCandidates_Order(t *testing.T) {
	t.Parallel()

	got := Candidates(vessel.Company{Name: "Alam Maritim (M) Sdn. Bhd.", Website: "http://www.alam-maritim.com.my"})
	require.Equal(t, []string{
		"http://www.alam-maritim.com.my",
		"https://www.alam-maritim.com.my",
		"http://alam-maritim.com.my",
		"https://www.alammaritimmsdnbhd.com",
		"http://www.alammaritimmsdnbhd.com",
		"https://www.alammaritimmsdnbhd.com.my",
		"http://www.alammaritimmsdnbhd.com.my",
		"https://alammaritimmsdnbhd.com",
		"http://alammaritimmsdnbhd.com",
	}, got)
}

func TestCandidates_AddsWWW(t *testing.T) {
	t.Parallel()

	got := Candidates(vessel.Company{Website: "https://example.com"})
	require.Equal(t, []string{"https://example.com", "https://www.example.com"}, got)
}

func TestCandidates_NoInputs(t *testing.T) {
	t.Parallel()

	require.Empty(t, Candidates(vessel.Company{}))
}

func TestResolver_FirstOKWins(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher().
		on(http.MethodHead, "http://www.tugs.com.my", http.StatusNotFound, "").
		on(http.MethodHead, "https://www.tugs.com.my", http.StatusOK, "").
		on(http.MethodHead, "https://www.tugs.com", http.StatusOK, "")

	r := NewResolver(newTestLoader(fetcher), nil)
	got, err := r.Resolve(context.Background(), vessel.Company{Name: "Tugs", Website: "http://www.tugs.com.my"})
	require.NoError(t, err)
	require.Equal(t, "https://www.tugs.com.my", got)
}

func TestResolver_NoWebsite(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher().on(http.MethodHead, "https://www.nothing.com", http.StatusForbidden, "")
	r := NewResolver(newTestLoader(fetcher), nil)

	_, err := r.Resolve(context.Background(), vessel.Company{Name: "Nothing"})
	require.True(t, errors.Is(err, ErrNoWebsite))
	require.Equal(t, 6, fetcher.callCount())
}

func TestResolver_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewResolver(newTestLoader(newFakeFetcher()), nil)
	_, err := r.Resolve(ctx, vessel.Company{Name: "Any"})
	require.ErrorIs(t, err, context.Canceled)
}
