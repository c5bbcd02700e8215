package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func serveWithHeader(header string) (seen string, echoed string) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/1/envelope/", nil)
	if header != "" {
		req.Header.Set(HeaderRequestID, header)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return seen, rr.Header().Get(HeaderRequestID)
}

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	seen, echoed := serveWithHeader("")

	_, err := uuid.Parse(seen)
	assert.NoError(t, err)
	assert.Equal(t, seen, echoed)
}

func TestRequestID_PropagatesValidHeader(t *testing.T) {
	seen, echoed := serveWithHeader("sdk-req_42:a.b")

	assert.Equal(t, "sdk-req_42:a.b", seen)
	assert.Equal(t, "sdk-req_42:a.b", echoed)
}

func TestRequestID_ReplacesUnusableHeader(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"whitespace", "req 42"},
		{"newline", "req\n42"},
		{"quote", `req"42`},
		{"too long", strings.Repeat("a", maxRequestIDLen+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen, echoed := serveWithHeader(tt.header)

			assert.NotEqual(t, tt.header, seen)
			_, err := uuid.Parse(seen)
			assert.NoError(t, err)
			assert.Equal(t, seen, echoed)
		})
	}
}

func TestGetRequestID(t *testing.T) {
	assert.Equal(t, "", GetRequestID(context.Background()))
	assert.Equal(t, "abc", GetRequestID(WithRequestID(context.Background(), "abc")))
}
