package vectordb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// chromaStub serves heartbeat plus a fixed collection-list response so the
// adapter can be driven without a Chroma server.
func chromaStub(t *testing.T, listStatus int, listBody string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/heartbeat"):
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"nanosecond heartbeat": 1}`))
		case strings.HasSuffix(r.URL.Path, "/version"):
			// The client pre-flights every collection call with a version
			// lookup; anything below 0.4.15 keeps it off the multi-tenant
			// endpoints this stub does not serve.
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`"0.4.14"`))
		case strings.HasSuffix(r.URL.Path, "/collections") && r.Method == http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(listStatus)
			_, _ = w.Write([]byte(listBody))
		default:
			http.Error(w, "unexpected call", http.StatusInternalServerError)
		}
	}))
}

func newChromaForTest(t *testing.T, baseURL string) *ChromaConnector {
	t.Helper()
	conn, err := newChromaConnector(Settings{InstanceURL: baseURL}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, conn.Connect(context.Background()))
	return conn
}

func TestChromaAbsentCollection(t *testing.T) {
	srv := chromaStub(t, http.StatusOK, `[]`)
	defer srv.Close()
	conn := newChromaForTest(t, srv.URL)

	exists, err := conn.NamespaceExists(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, exists)

	dims, err := conn.IndexDimensions(context.Background(), "missing")
	require.NoError(t, err)
	assert.Equal(t, 0, dims)

	require.NoError(t, conn.DeleteByIDs(context.Background(), "missing", []string{"a"}))
}

func TestChromaServerFailurePropagates(t *testing.T) {
	srv := chromaStub(t, http.StatusInternalServerError, `{"error":"boom"}`)
	defer srv.Close()
	conn := newChromaForTest(t, srv.URL)

	_, err := conn.NamespaceExists(context.Background(), "docs")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnection)

	err = conn.DeleteByIDs(context.Background(), "docs", []string{"a"})
	require.Error(t, err)

	_, err = conn.IndexDimensions(context.Background(), "docs")
	require.Error(t, err)
}
