package httpserver

import (
	"net/http"
	"time"
)

// New wraps the broker router in an http.Server. ReadHeaderTimeout bounds
// how long a client may dribble request headers before the connection is
// dropped.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
