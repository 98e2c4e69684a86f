package hls

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDownloaderDeliversFragmentsInOrder(t *testing.T) {
	var polls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/playlist.m3u8":
			n := polls.Add(1)
			if n == 1 {
				fmt.Fprint(w, "#EXTM3U\n/frag/0.ts\n/frag/1.ts\n")
				return
			}
			w.WriteHeader(http.StatusForbidden)
		default:
			fmt.Fprintf(w, "data-%s", r.URL.Path)
		}
	}))
	defer srv.Close()

	d := New(Config{PlaylistURL: srv.URL + "/playlist.m3u8", Threads: 2, HTTPClient: srv.Client()})
	d.Start(context.Background())
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first, err := d.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "data-/frag/0.ts", string(first))

	second, err := d.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "data-/frag/1.ts", string(second))

	_, err = d.Next(ctx)
	require.ErrorIs(t, err, io.EOF)
}

func TestDownloaderSubstitutesEmptyAfterRetriesExhausted(t *testing.T) {
	var polls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/playlist.m3u8":
			n := polls.Add(1)
			if n == 1 {
				fmt.Fprint(w, "/frag/bad.ts\n")
				return
			}
			w.WriteHeader(http.StatusForbidden)
		case "/frag/bad.ts":
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	d := New(Config{PlaylistURL: srv.URL + "/playlist.m3u8", Threads: 1, HTTPClient: srv.Client()})
	d.Start(context.Background())
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := d.Next(ctx)
	require.NoError(t, err)
	require.Empty(t, data)
}
