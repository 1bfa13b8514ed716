package scambustest

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/labstack/echo/v4"
)

// sseWriter serializes server-sent events onto an echo response.
type sseWriter struct {
	mu   sync.Mutex
	resp *echo.Response
}

func (w *sseWriter) event(name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.resp, "event: %s\n", name)
	fmt.Fprintf(w.resp, "data: %s\n\n", data)
	w.resp.Flush()
}

func (w *sseWriter) comment(text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.resp, ": %s\n\n", text)
	w.resp.Flush()
}
