package fc2ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{}

func dialURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestGetHLSInformationReturnsMergedPlaylists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		var req inboundMessage
		require.NoError(t, json.Unmarshal(raw, &req))
		require.Equal(t, "get_hls_information", req.Name)

		resp := outboundMessage{
			Name: "_response_",
			Arguments: map[string]any{
				"playlists": []map[string]any{{"url": "A", "mode": 52}},
			},
			ID: req.ID,
		}
		payload, _ := json.Marshal(resp)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))

		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	ch, err := Dial(context.Background(), dialURL(srv), "", slog.Default())
	require.NoError(t, err)
	defer ch.Close()

	info, err := ch.GetHLSInformation(context.Background())
	require.NoError(t, err)
	require.Len(t, info.Merged(), 1)
	require.Equal(t, "A", info.Merged()[0].URL)
}

func TestGetHLSInformationFailsWhenContextExpires(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		// Never responds; the caller's context expires during the first
		// attempt, and the client returns an error instead of retrying.
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	ch, err := Dial(context.Background(), dialURL(srv), "", slog.Default())
	require.NoError(t, err)
	defer ch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_, err = ch.GetHLSInformation(ctx)
	require.Error(t, err)
}

func TestControlDisconnectionEndsWaitDisconnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		msg := outboundMessage{Name: "control_disconnection", Arguments: map[string]int{"code": 4101}}
		payload, _ := json.Marshal(msg)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	ch, err := Dial(context.Background(), dialURL(srv), "", slog.Default())
	require.NoError(t, err)
	defer ch.Close()

	err = ch.WaitDisconnection(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "paid_program")
}

func TestCommentsStreamDeliversEachElement(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		msg := outboundMessage{
			Name:      "comment",
			Arguments: map[string]any{"comments": []map[string]string{{"name": "a"}, {"name": "b"}}},
		}
		payload, _ := json.Marshal(msg)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	ch, err := Dial(context.Background(), dialURL(srv), "", slog.Default())
	require.NoError(t, err)
	defer ch.Close()

	first := <-ch.Comments()
	second := <-ch.Comments()
	require.Contains(t, string(first), "a")
	require.Contains(t, string(second), "b")
}
