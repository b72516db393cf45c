package docai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const processorResponse = `{
	"document": {
		"pages": [{"dimension": {"width": 1000, "height": 800}}],
		"entities": [
			{
				"type": "email",
				"mentionText": "jane@example.com",
				"confidence": 0.92,
				"pageAnchor": {"pageRefs": [{"page": "0", "boundingPoly": {
					"normalizedVertices": [
						{"x": 0.1, "y": 0.2}, {"x": 0.5, "y": 0.2},
						{"x": 0.5, "y": 0.25}, {"x": 0.1, "y": 0.25}
					]
				}}]}
			},
			{
				"type": "name",
				"mentionText": "Jane Doe",
				"confidence": 0.97,
				"pageAnchor": {}
			}
		]
	}
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("key", 5*time.Second, WithEndpoint(srv.URL), WithHTTPClient(srv.Client()))
}

func TestProcess_NormalizesEntities(t *testing.T) {
	var gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var req processRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "image/png", req.RawDocument.MimeType)
		assert.NotEmpty(t, req.RawDocument.Content)
		_, _ = w.Write([]byte(processorResponse))
	})

	doc, err := c.Process(context.Background(), []byte("png-bytes"), "image/png", "projects/p/locations/us/processors/abc")
	require.NoError(t, err)

	assert.Equal(t, "/projects/p/locations/us/processors/abc:process", gotPath)
	require.Len(t, doc.Entities, 2)
	require.Len(t, doc.Pages, 1)

	email := doc.Entities[0]
	assert.Equal(t, "email", email.Type)
	assert.Equal(t, "jane@example.com", email.Text)
	assert.InDelta(t, 0.92, email.Confidence, 1e-9)
	// Normalized vertices scale to pixel coordinates.
	require.Len(t, email.Vertices, 4)
	assert.Equal(t, [2]float64{100, 160}, email.Vertices[0])
	assert.Equal(t, [2]float64{500, 160}, email.Vertices[1])

	// Entities without geometry still come through.
	name := doc.Entities[1]
	assert.Equal(t, "Jane Doe", name.Text)
	assert.Empty(t, name.Vertices)
}

func TestProcess_EmptyImage(t *testing.T) {
	c := NewClient("key", time.Second)
	_, err := c.Process(context.Background(), nil, "image/png", "proc")
	assert.Error(t, err)
}

func TestProcess_MissingProcessor(t *testing.T) {
	c := NewClient("key", time.Second)
	_, err := c.Process(context.Background(), []byte("x"), "image/png", "")
	assert.Error(t, err)
}

func TestProcess_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := c.Process(context.Background(), []byte("x"), "image/png", "proc")
	assert.Error(t, err)
}

func TestWithEndpoint_EmptyKeepsDefault(t *testing.T) {
	c, ok := NewClient("key", time.Second, WithEndpoint("")).(*restClient)
	require.True(t, ok)
	assert.Equal(t, defaultEndpoint, c.endpoint)

	c = NewClient("key", time.Second, WithEndpoint("http://localhost:9090")).(*restClient)
	assert.Equal(t, "http://localhost:9090", c.endpoint)
}
