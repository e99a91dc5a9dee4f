package wikipedia_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/rangulvers/wikigraph/internal/wikipedia"
)

// newTestClient points a Client at an httptest server by rewriting the site
// host to the server's address; the client always builds https:// URLs, so
// the test server's handler is exercised through a custom RoundTripper.
func newTestClient(t *testing.T, handler http.HandlerFunc) (*wikipedia.Client, func()) {
	t.Helper()
	server := httptest.NewServer(handler)
	client := wikipedia.NewClient(wikipedia.Config{
		Site:      strings.TrimPrefix(server.URL, "http://"),
		UserAgent: "wikigraph-test/1.0",
	}, zerolog.Nop())
	client.SetTransportForTesting(&rewriteToHTTPTransport{base: server.URL})
	return client, server.Close
}

// rewriteToHTTPTransport rewrites https://host/... into http://host/... so
// requests land on the local httptest server without needing real TLS.
type rewriteToHTTPTransport struct {
	base string
}

func (t *rewriteToHTTPTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	u, err := url.Parse(t.base)
	if err != nil {
		return nil, err
	}
	req = req.Clone(req.Context())
	req.URL.Scheme = u.Scheme
	req.URL.Host = u.Host
	return http.DefaultTransport.RoundTrip(req)
}

func TestOutboundLinksPaginates(t *testing.T) {
	calls := 0
	client, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("plcontinue") == "" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"query":    map[string]any{"pages": []any{map[string]any{"links": []any{map[string]any{"title": "B"}}}}},
				"continue": map[string]any{"plcontinue": "next"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"query": map[string]any{"pages": []any{map[string]any{"links": []any{map[string]any{"title": "C"}}}}},
		})
	})
	defer closeFn()

	links, errE := client.OutboundLinks(context.Background(), "A")
	require.NoError(t, errE)
	assert.Equal(t, []string{"B", "C"}, links)
	assert.Equal(t, 2, calls)
}

func TestOutboundLinksNotFound(t *testing.T) {
	client, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"query": map[string]any{"pages": []any{map[string]any{"missing": true}}},
		})
	})
	defer closeFn()

	links, errE := client.OutboundLinks(context.Background(), "NoSuchPage")
	require.Error(t, errE)
	assert.Nil(t, links)
	assert.ErrorIs(t, errE, wikipedia.ErrNotFound)
}

func TestOutboundLinksBadStatusIsDeadEnd(t *testing.T) {
	client, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer closeFn()

	links, errE := client.OutboundLinks(context.Background(), "A")
	require.NoError(t, errE)
	assert.Empty(t, links)
}

func TestInboundLinksCapsAtLimit(t *testing.T) {
	client, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "10", r.URL.Query().Get("bllimit"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"query": map[string]any{"backlinks": []any{map[string]any{"title": "X"}}},
		})
	})
	defer closeFn()

	links, errE := client.InboundLinks(context.Background(), "A", 10)
	require.NoError(t, errE)
	assert.Equal(t, []string{"X"}, links)
}

func TestResolveReturnsTopCandidate(t *testing.T) {
	client, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`["go programming", ["Go (programming language)"], [""], [""]]`))
	})
	defer closeFn()

	canonical, errE := client.Resolve(context.Background(), "go programming")
	require.NoError(t, errE)
	assert.Equal(t, "Go (programming language)", canonical)
}

func TestResolveNotFound(t *testing.T) {
	client, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`["nonexistent term", [], [], []]`))
	})
	defer closeFn()

	_, errE := client.Resolve(context.Background(), "nonexistent term")
	require.Error(t, errE)
	assert.ErrorIs(t, errE, wikipedia.ErrNotResolved)
}
