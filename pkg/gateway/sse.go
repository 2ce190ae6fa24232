package gateway

import (
	"bufio"
	"io"
	"net/http"

	"github.com/mcpgateway/registry/pkg/httperr"
	"github.com/mcpgateway/registry/pkg/log"
)

// streamSSE copies upstream's text/event-stream body to the client frame by
// frame, preserving the blank-line event boundary and flushing after every
// line so no frame is held back waiting for a fuller buffer (§4.7 step 6:
// "no buffering longer than one frame", §8 scenario S6).
//
// On a read error partway through the stream, a terminal "event: error"
// frame is appended before the connection closes; the response status line
// already sent cannot be changed at this point (§4.7 step 7, §7 Upstream).
func streamSSE(w http.ResponseWriter, upstream *http.Response, requestID string) {
	flusher, canFlush := w.(http.Flusher)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	if sid := upstream.Header.Get("mcp-session-id"); sid != "" {
		w.Header().Set("mcp-session-id", sid)
	}
	w.WriteHeader(http.StatusOK)
	if canFlush {
		flusher.Flush()
	}

	scanner := bufio.NewScanner(upstream.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if _, err := w.Write(append(scanner.Bytes(), '\n')); err != nil {
			return // client disconnected; nothing left to flush to
		}
		if canFlush {
			flusher.Flush()
		}
	}

	if err := scanner.Err(); err != nil && err != io.EOF {
		log.Warnf("gateway: sse stream from upstream ended with error: %v", err)
		_, _ = w.Write(httperr.SSEFrame(httperr.CodeUpstream, "upstream connection lost mid-stream", requestID))
		if canFlush {
			flusher.Flush()
		}
	}
}
