package middleware

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Nastaran-Nourbakhsh/nova/internal/api/response"
)

// BodyLimitRecorder records when a request is rejected for exceeding the body limit (optional).
// Pass nil when metrics are disabled.
type BodyLimitRecorder interface {
	RecordRequestBodyTooLarge(ctx context.Context)
}

// MaxBody returns a middleware that limits request body size to maxBytes.
// When the body exceeds the limit, the response is 413 Request Entity Too Large.
// recorder is optional; when non-nil, it is called for each rejected request.
// Use 0 or negative to disable (no limit); typically use config.MaxBodyBytes.
func MaxBody(maxBytes int64, recorder BodyLimitRecorder) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Wrap body so we can detect when the limit is exceeded (the handler itself
			// will have seen a read error and typically replied 400/500).
			body := &limitedBody{ReadCloser: http.MaxBytesReader(w, r.Body, maxBytes)}
			r.Body = body

			// Only buffer the response for methods that carry a body, so the handler's
			// reply can be discarded and replaced with 413. GET/DELETE stream directly
			// to avoid memory and TTFB cost.
			if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
				next.ServeHTTP(w, r)
				return
			}

			buffered := &bufferedResponse{ResponseWriter: w}
			next.ServeHTTP(buffered, r)

			if body.exceeded {
				if recorder != nil {
					recorder.RecordRequestBodyTooLarge(r.Context())
				}

				response.RespondError(buffered.ResponseWriter, http.StatusRequestEntityTooLarge,
					"Request Entity Too Large", "request body exceeds maximum allowed size")

				return
			}

			buffered.flush()
		})
	}
}

// limitedBody marks when a read failed because http.MaxBytesReader hit its limit.
type limitedBody struct {
	io.ReadCloser

	exceeded bool
}

func (b *limitedBody) Read(p []byte) (n int, err error) {
	n, err = b.ReadCloser.Read(p)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			b.exceeded = true
		}

		return n, fmt.Errorf("read body: %w", err)
	}

	return n, nil
}

// bufferedResponse captures status and body so the reply can be discarded and replaced with 413.
type bufferedResponse struct {
	http.ResponseWriter

	status int
	buf    bytes.Buffer
}

func (b *bufferedResponse) WriteHeader(code int) {
	b.status = code
}

func (b *bufferedResponse) Write(p []byte) (n int, err error) {
	n, err = b.buf.Write(p)
	if err != nil {
		return n, fmt.Errorf("buffer write: %w", err)
	}

	return n, nil
}

func (b *bufferedResponse) flush() {
	if b.status != 0 {
		b.ResponseWriter.WriteHeader(b.status)
	}

	_, _ = b.buf.WriteTo(b.ResponseWriter)
}
