package news

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	require.Equal(t, ErrorKind(""), KindOf(nil))
	require.Equal(t, KindAuth, KindOf(Errorf(KindAuth, "bad key")))
	require.Equal(t, KindUpstream, KindOf(errors.New("plain")))

	wrapped := fmt.Errorf("fetch page: %w", Errorf(KindRateLimited, "quota exhausted"))
	require.Equal(t, KindRateLimited, KindOf(wrapped))
	require.True(t, IsKind(wrapped, KindRateLimited))
	require.False(t, IsKind(wrapped, KindAuth))
}

func TestDetail(t *testing.T) {
	t.Parallel()

	require.Empty(t, Detail(nil))
	require.Equal(t, "no articles found", Detail(Errorf(KindNoResults, "no articles found")))

	cause := errors.New("connection refused")
	require.Equal(t, "fetch failed: connection refused", Detail(NewError(KindUpstream, "fetch failed", cause)))
	require.Equal(t, "plain", Detail(errors.New("plain")))
}

func TestErrorUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := NewError(KindStorage, "write aggregate", cause)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "storage")
	require.Contains(t, err.Error(), "boom")
}
