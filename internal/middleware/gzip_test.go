package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func echoHandler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	w.Header().Set("Content-Type", contentType)

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("echo: " + string(body)))
}

func TestGzipMiddleware(t *testing.T) {
	type want struct {
		contentEncoding string
		contentType     string
		bodyContains    string
	}

	tests := []struct {
		name           string
		requestBody    string
		gzipRequest    bool
		acceptEncoding string
		contentType    string
		want           want
	}{
		{
			name:           "json response compressed",
			requestBody:    `{"item_id":"bk-1"}`,
			acceptEncoding: "gzip, deflate",
			contentType:    "application/json",
			want: want{
				contentEncoding: "gzip",
				contentType:     "application/json",
				bodyContains:    `echo: {"item_id":"bk-1"}`,
			},
		},
		{
			name:           "client does not accept gzip",
			requestBody:    `{"quantity":3}`,
			acceptEncoding: "",
			contentType:    "application/json",
			want: want{
				contentType:  "application/json",
				bodyContains: `echo: {"quantity":3}`,
			},
		},
		{
			name:           "binary content left alone",
			requestBody:    "png",
			acceptEncoding: "gzip",
			contentType:    "image/png",
			want: want{
				contentType:  "image/png",
				bodyContains: "echo: png",
			},
		},
		{
			name:           "compressed request body",
			requestBody:    `{"payment_method":"card"}`,
			gzipRequest:    true,
			acceptEncoding: "gzip",
			contentType:    "application/json",
			want: want{
				contentEncoding: "gzip",
				contentType:     "application/json",
				bodyContains:    `echo: {"payment_method":"card"}`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var requestBody io.Reader = strings.NewReader(tt.requestBody)
			if tt.gzipRequest {
				var buf bytes.Buffer
				gz := gzip.NewWriter(&buf)
				if _, err := gz.Write([]byte(tt.requestBody)); err != nil {
					t.Fatalf("write gzip: %v", err)
				}
				if err := gz.Close(); err != nil {
					t.Fatalf("close gzip: %v", err)
				}
				requestBody = &buf
			}

			req := httptest.NewRequest(http.MethodPost, "/echo", requestBody)
			req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			req.Header.Set("Content-Type", tt.contentType)
			if tt.gzipRequest {
				req.Header.Set("Content-Encoding", "gzip")
			}

			w := httptest.NewRecorder()
			GzipMiddleware(http.HandlerFunc(echoHandler)).ServeHTTP(w, req)

			res := w.Result()
			defer res.Body.Close()

			if res.StatusCode != http.StatusOK {
				t.Fatalf("status: got %d want %d", res.StatusCode, http.StatusOK)
			}
			if ct := res.Header.Get("Content-Type"); ct != tt.want.contentType {
				t.Fatalf("content-type: got %q want %q", ct, tt.want.contentType)
			}
			if ce := res.Header.Get("Content-Encoding"); ce != tt.want.contentEncoding {
				t.Fatalf("content-encoding: got %q want %q", ce, tt.want.contentEncoding)
			}

			var reader io.Reader = res.Body
			if res.Header.Get("Content-Encoding") == "gzip" {
				gr, err := gzip.NewReader(res.Body)
				if err != nil {
					t.Fatalf("new gzip reader: %v", err)
				}
				defer gr.Close()
				reader = gr
			}

			body, err := io.ReadAll(reader)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			if !strings.Contains(string(body), tt.want.bodyContains) {
				t.Fatalf("body %q does not contain %q", string(body), tt.want.bodyContains)
			}
		})
	}
}

func TestGzipMiddleware_BrokenRequestBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("not gzip"))
	req.Header.Set("Content-Encoding", "gzip")

	w := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(echoHandler)).ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("status: got %d want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
}
