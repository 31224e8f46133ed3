package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeHalwell/MyGPT/domain/chat"
	"github.com/CodeHalwell/MyGPT/domain/embedding"
)

func newLocalService(t *testing.T) *LocalService {
	t.Helper()
	svc, err := NewLocalService(embedding.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestLocalService_EmbedIsDeterministic(t *testing.T) {
	svc := newLocalService(t)

	first, err := svc.Embed(context.Background(), "how do I sort a list in python")
	require.NoError(t, err)
	second, err := svc.Embed(context.Background(), "how do I sort a list in python")
	require.NoError(t, err)

	assert.Len(t, first, 384)
	assert.Equal(t, first, second)
}

func TestLocalService_DifferentTextsDiffer(t *testing.T) {
	svc := newLocalService(t)

	a, err := svc.Embed(context.Background(), "alpha")
	require.NoError(t, err)
	b, err := svc.Embed(context.Background(), "bravo")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestLocalService_EmptyTextRejected(t *testing.T) {
	svc := newLocalService(t)

	_, err := svc.Embed(context.Background(), "   ")

	assert.Error(t, err)
}

func TestLocalService_EmbedMessages(t *testing.T) {
	svc := newLocalService(t)

	vec, err := svc.EmbedMessages(context.Background(), []chat.Message{
		{Role: chat.RoleUser, Content: "hello"},
		{Role: chat.RoleAssistant, Content: "hi"},
	})

	require.NoError(t, err)
	assert.Len(t, vec, svc.GetDimensions())
}

func TestLocalService_EmbedMessagesEmpty(t *testing.T) {
	svc := newLocalService(t)

	_, err := svc.EmbedMessages(context.Background(), nil)

	assert.Error(t, err)
}

func TestLocalService_BatchEmbed(t *testing.T) {
	svc := newLocalService(t)

	vecs, err := svc.BatchEmbed(context.Background(), []string{"one", "two", "three"})

	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, v := range vecs {
		assert.Len(t, v, 384)
	}

	// Order must match the input order.
	solo, err := svc.Embed(context.Background(), "two")
	require.NoError(t, err)
	assert.Equal(t, solo, vecs[1])
}

func TestLocalService_ClosedServiceErrors(t *testing.T) {
	svc, err := NewLocalService(embedding.Config{})
	require.NoError(t, err)
	require.NoError(t, svc.Close())

	_, err = svc.Embed(context.Background(), "text")
	assert.Error(t, err)
	assert.Error(t, svc.Health(context.Background()))
}

func TestHTTPService_EmbedRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health", "/ready":
			w.WriteHeader(http.StatusOK)
		case "/embed":
			var req embedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			vec := make([]float32, 384)
			vec[0] = float32(len(req.Text))
			json.NewEncoder(w).Encode(embedResponse{Embedding: vec, Dimensions: 384})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	svc, err := NewHTTPService(embedding.Config{ServiceURL: server.URL})
	require.NoError(t, err)
	defer svc.Close()

	vec, err := svc.Embed(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, vec, 384)
	assert.Equal(t, float32(5), vec[0])

	assert.NoError(t, svc.Health(context.Background()))
	assert.NoError(t, svc.Readiness(context.Background()))
}

func TestHTTPService_CachesRepeatQueries(t *testing.T) {
	embedCalls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/embed" {
			embedCalls++
		}
		if strings.HasPrefix(r.URL.Path, "/embed") {
			json.NewEncoder(w).Encode(embedResponse{Embedding: make([]float32, 384)})
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	svc, err := NewHTTPService(embedding.Config{ServiceURL: server.URL})
	require.NoError(t, err)
	defer svc.Close()

	_, err = svc.Embed(context.Background(), "repeat me")
	require.NoError(t, err)
	_, err = svc.Embed(context.Background(), "repeat me")
	require.NoError(t, err)

	assert.Equal(t, 1, embedCalls)
}

func TestHTTPService_UnreachableEndpointFailsConstruction(t *testing.T) {
	_, err := NewHTTPService(embedding.Config{ServiceURL: "http://127.0.0.1:1"})

	assert.Error(t, err)
}

func TestFactory(t *testing.T) {
	svc, err := NewService(LocalType, embedding.Config{})
	require.NoError(t, err)
	assert.Equal(t, 384, svc.GetDimensions())
	svc.Close()

	_, err = NewService(HTTPType, embedding.Config{})
	assert.Error(t, err)

	_, err = NewService(ServiceType("onnx"), embedding.Config{})
	assert.Error(t, err)

	assert.True(t, IsValidType(LocalType))
	assert.True(t, IsValidType(HTTPType))
	assert.False(t, IsValidType(ServiceType("bogus")))
	assert.Equal(t, LocalType, DefaultType())
}
