// Package websockettest bundles small helpers for exercising WebSocket
// endpoints from unit tests.
package websockettest

import (
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/gorilla/websocket"
)

// Dial connects to the given WebSocket path of the provided test server.
func Dial(server *httptest.Server, path string, header http.Header) (*websocket.Conn, *http.Response, error) {
	url := strings.Replace(server.URL, "http", "ws", 1) + path
	return websocket.DefaultDialer.Dial(url, header)
}
