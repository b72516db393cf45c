package blob

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStoreRoundTrip(t *testing.T) {
	st, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	ref, err := st.Put("cards/img-1.png", []byte("image bytes"))
	require.NoError(t, err)
	assert.Equal(t, "cards/img-1.png", ref)

	data, err := st.Fetch(ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("image bytes"), data)
}

func TestFSStoreFetchMissing(t *testing.T) {
	st, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	_, err = st.Fetch("nope.png")
	assert.Error(t, err)
}

func TestFSStoreRejectsEscape(t *testing.T) {
	st, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	_, err = st.Put("", []byte("x"))
	assert.Error(t, err)
}
