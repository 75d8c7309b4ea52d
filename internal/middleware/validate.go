package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
)

/*
RELAY REQUEST GUARD

- Bound the body before anything reads it
- Only JSON (or plain text carrying JSON) is relayed
- No payload inspection, no schema validation: the relay forwards bytes

The body is buffered and replaced so the relay can read it
as many times as it needs (log line + upstream forward).
*/

// Allowed content types.
// Prefix match so parameters like "; charset=utf-8" pass.
var AllowedContentTypes = []string{
	"application/json",
	"text/plain",
}

// ValidateRequest caps the body at maxBodyBytes and enforces AllowedContentTypes
// whenever a body is present.
func ValidateRequest(maxBodyBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

			if r.ContentLength > 0 {
				if !isAllowedContentType(r.Header.Get("Content-Type")) {
					http.Error(w, "unsupported Content-Type", http.StatusUnsupportedMediaType)
					return
				}
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

			body, err := io.ReadAll(r.Body)
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
					return
				}
				http.Error(w, "failed to read request body", http.StatusBadRequest)
				return
			}

			// Chunked bodies arrive with ContentLength -1.
			if r.ContentLength < 0 && len(body) > 0 && !isAllowedContentType(r.Header.Get("Content-Type")) {
				http.Error(w, "unsupported Content-Type", http.StatusUnsupportedMediaType)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			r.ContentLength = int64(len(body))

			next.ServeHTTP(w, r)
		})
	}
}

func isAllowedContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if ct == "" {
		return false
	}

	for _, allowed := range AllowedContentTypes {
		if strings.HasPrefix(ct, allowed) {
			return true
		}
	}
	return false
}
