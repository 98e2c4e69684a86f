package fc2api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeOrtkn struct{ v string }

func (f fakeOrtkn) OrtknValue() string { return f.v }

func TestDecodeControlTokenFC2IDExtractsClaim(t *testing.T) {
	// header.payload.signature, payload = {"fc2_id":"abc123"}
	token := "eyJhbGciOiJub25lIn0.eyJmYzJfaWQiOiJhYmMxMjMifQ.sig"
	id, err := decodeControlTokenFC2ID(token)
	require.NoError(t, err)
	require.Equal(t, "abc123", id)
}

func TestDecodeControlTokenFC2IDAnonymous(t *testing.T) {
	// payload = {}
	token := "eyJhbGciOiJub25lIn0.e30.sig"
	id, err := decodeControlTokenFC2ID(token)
	require.NoError(t, err)
	require.Equal(t, "", id)
}

func TestGetMetaCachesUntilRefresh(t *testing.T) {
	c := &Client{channelID: "123", meta: &Metadata{ChannelID: "123", IsPublish: true}}
	meta, err := c.GetMeta(context.Background(), false)
	require.NoError(t, err)
	require.True(t, meta.IsPublish)
}

func TestGetMetaToleratesTextJavascriptContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/javascript")
		_, _ = w.Write([]byte(`{"data":{"channel_data":{"channelid":"99","title":"hello","image":"http://x/thumb.jpg","is_publish":1,"version":"v1"},"profile_data":{"name":"someone"}}}`))
	}))
	defer srv.Close()

	c := New(Config{ChannelID: "99"})
	c.http = &http.Client{Transport: redirectingTransport(t, srv.URL)}

	meta, err := c.GetMeta(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, "99", meta.ChannelID)
	require.Equal(t, "someone", meta.ChannelName)
	require.True(t, meta.IsPublish)
}

func TestGetWebsocketURLReturnsControlTokenQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/memberApi.php":
			_, _ = w.Write([]byte(`{"data":{"channel_data":{"channelid":"99","is_publish":1,"version":"v1"},"profile_data":{"name":"x"}}}`))
		case "/api/getControlServer.php":
			require.NoError(t, r.ParseForm())
			require.Equal(t, "orz-value", r.PostForm.Get("orz"))
			_, _ = w.Write([]byte(`{"url":"wss://example/ws","control_token":"eyJhbGciOiJub25lIn0.e30.sig"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(Config{ChannelID: "99"})
	c.http = &http.Client{Transport: redirectingTransport(t, srv.URL)}

	wsURL, err := c.GetWebsocketURL(context.Background(), fakeOrtkn{v: "orz-value"})
	require.NoError(t, err)
	require.Equal(t, "wss://example/ws?control_token=eyJhbGciOiJub25lIn0.e30.sig", wsURL)
}

// redirectingTransport rewrites every outbound request's scheme/host to
// targetBaseURL, so production endpoint constants can be exercised
// against an httptest.Server without an exported seam to swap them.
func redirectingTransport(t *testing.T, targetBaseURL string) http.RoundTripper {
	t.Helper()
	target, err := url.Parse(targetBaseURL)
	require.NoError(t, err)
	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		redirected := req.Clone(req.Context())
		redirected.URL.Scheme = target.Scheme
		redirected.URL.Host = target.Host
		redirected.Host = target.Host
		return http.DefaultTransport.RoundTrip(redirected)
	})
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }
