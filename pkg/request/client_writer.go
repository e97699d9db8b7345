package request

import "net/http"

// ClientWriter wraps an http.ResponseWriter and records the status code
// written to it, so middleware can report it after the handler returns.
type ClientWriter struct {
	http.ResponseWriter
	statusCode int
}

// NewClientWriter creates a new ClientWriter.
func NewClientWriter(w http.ResponseWriter) *ClientWriter {
	return &ClientWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// WriteHeader records the status code and forwards it to the wrapped writer.
func (w *ClientWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// StatusCode returns the status code written to the response.
func (w *ClientWriter) StatusCode() int {
	return w.statusCode
}
