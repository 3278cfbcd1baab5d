// Package relay copies upstream response bodies to the caller.
package relay

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"privproxy/internal/model"
)

const bufferSize = 32 * 1024

var bufferPool = sync.Pool{
	New: func() any {
		b := make([]byte, bufferSize)
		return &b
	},
}

// Copy writes b to w and returns the number of bytes written.
//
// A StreamedBody is copied as it arrives, one bounded chunk at a time, and w
// is flushed after every chunk when it implements http.Flusher. A slow writer
// therefore throttles reads from upstream instead of growing a buffer.
// A BufferedBody is written in a single call.
func Copy(w io.Writer, b model.Body) (int64, error) {
	switch body := b.(type) {
	case model.StreamedBody:
		return stream(w, body)
	case model.BufferedBody:
		if len(body.Data) == 0 {
			return 0, nil
		}
		n, err := w.Write(body.Data)
		if err != nil {
			return int64(n), fmt.Errorf("write: %w", err)
		}
		return int64(n), nil
	default:
		return 0, fmt.Errorf("relay: unsupported body type %T", b)
	}
}

func stream(w io.Writer, r io.Reader) (int64, error) {
	flusher, _ := w.(http.Flusher)

	bp := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bp)
	buf := *bp

	var written int64
	for {
		nr, rerr := r.Read(buf)
		if nr > 0 {
			nw, werr := w.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, fmt.Errorf("write: %w", werr)
			}
			if nw != nr {
				return written, io.ErrShortWrite
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if errors.Is(rerr, io.EOF) {
			return written, nil
		}
		if rerr != nil {
			return written, fmt.Errorf("read upstream: %w", rerr)
		}
	}
}
