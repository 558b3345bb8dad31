package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		BaseURL:    srv.URL,
		Timeout:    2 * time.Second,
		HTTPClient: srv.Client(),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "empty", url: "", wantErr: true},
		{name: "bad scheme", url: "ftp://example.com", wantErr: true},
		{name: "http", url: "http://localhost:5000", wantErr: false},
		{name: "https with trailing slash", url: "https://auth.example.com/", wantErr: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Config{BaseURL: tt.url})
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestSubmitLogin_Success(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/login" {
			t.Errorf("request = %s %s, want POST /login", r.Method, r.URL.Path)
		}
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if !strings.HasPrefix(req.Image, "data:image/jpeg;base64,") {
			t.Errorf("image = %q, want a jpeg data url", req.Image)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":     true,
			"user_id":     "ab12cd34",
			"name":        "Asha Rao",
			"email":       "asha@example.com",
			"department":  "Ops",
			"login_count": 3,
			"image":       "aGVsbG8=",
		})
	})

	res, err := c.SubmitLogin(context.Background(), []byte{0xff, 0xd8, 0xff})
	if err != nil {
		t.Fatalf("SubmitLogin() error = %v", err)
	}
	if res.UserID != "ab12cd34" || res.Name != "Asha Rao" || res.LoginCount != 3 || res.Department != "Ops" {
		t.Errorf("result = %+v", res)
	}
}

func TestSubmitLogin_Failures(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantMsg    string
		wantStatus int
	}{
		{
			name: "server rejection message verbatim",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, Envelope{Success: false, Message: "Face not recognized."})
			},
			wantMsg:    "Face not recognized.",
			wantStatus: http.StatusOK,
		},
		{
			name: "rejection without message",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, Envelope{Success: false})
			},
			wantMsg:    GenericMessage,
			wantStatus: http.StatusOK,
		},
		{
			name: "error status with message",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusBadRequest, Envelope{Success: false, Message: "Invalid image data."})
			},
			wantMsg:    "Invalid image data.",
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "undecodable body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				w.Write([]byte("<html>bad gateway</html>"))
			},
			wantMsg:    GenericMessage,
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, tt.handler)

			_, err := c.SubmitLogin(context.Background(), []byte("jpeg"))
			var gwErr *Error
			if !errors.As(err, &gwErr) {
				t.Fatalf("error = %v, want *Error", err)
			}
			if gwErr.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", gwErr.Message, tt.wantMsg)
			}
			if gwErr.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", gwErr.Status, tt.wantStatus)
			}
			if got := UserMessage(err); got != tt.wantMsg {
				t.Errorf("UserMessage() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestSubmitLogin_TransportFailure(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	_, err := c.SubmitLogin(context.Background(), []byte("jpeg"))
	if err == nil {
		t.Fatal("SubmitLogin() error = nil with server down")
	}
	if got := UserMessage(err); got != GenericMessage {
		t.Errorf("UserMessage() = %q, want the generic message", got)
	}
	var gwErr *Error
	if errors.As(err, &gwErr) && gwErr.Status != 0 {
		t.Errorf("Status = %d, want 0 for transport failure", gwErr.Status)
	}
}

func TestSubmitLogin_SingleRoundTrip(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusInternalServerError, Envelope{Success: false, Message: "boom"})
	})

	c.SubmitLogin(context.Background(), []byte("jpeg"))
	if n := hits.Load(); n != 1 {
		t.Errorf("server hits = %d, want exactly 1 (no retry)", n)
	}
}

func TestSubmitRegistration(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/register" {
			t.Errorf("path = %s, want /register", r.URL.Path)
		}
		var raw map[string]any
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if raw["email"] != "asha@example.com" {
			t.Errorf("email = %v, want normalized", raw["email"])
		}
		if raw["dateOfBirth"] != "1990-04-01" {
			t.Errorf("dateOfBirth = %v", raw["dateOfBirth"])
		}
		images, _ := raw["images"].([]any)
		if len(images) != 3 {
			t.Errorf("len(images) = %d, want 3", len(images))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":          true,
			"user_id":          "9f8e7d6c",
			"name":             "Asha Rao",
			"training_photos":  3,
			"valid_photos":     3,
			"training_quality": 1.0,
		})
	})

	p := Profile{Name: " Asha Rao ", Email: " Asha@Example.com", DateOfBirth: "1990-04-01"}
	res, err := c.SubmitRegistration(context.Background(), [][]byte{{1}, {2}, {3}}, p)
	if err != nil {
		t.Fatalf("SubmitRegistration() error = %v", err)
	}
	if res.UserID != "9f8e7d6c" || res.TrainingPhotos != 3 {
		t.Errorf("result = %+v", res)
	}
}

func TestLogout_FireAndForget(t *testing.T) {
	release := make(chan struct{})
	reqs := make(chan LogoutRequest, 1)
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req LogoutRequest
		json.NewDecoder(r.Body).Decode(&req)
		reqs <- req
		<-release
		writeJSON(w, http.StatusOK, Envelope{Success: true, Message: "Logout logged successfully."})
	})

	start := time.Now()
	done := c.Logout("ab12cd34", "Asha Rao")
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Logout blocked on the round trip")
	}
	close(release)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Logout outcome = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Logout never completed")
	}
	if got := <-reqs; got.Name != "Asha Rao" || got.UserID != "ab12cd34" {
		t.Errorf("request = %+v", got)
	}
}

func TestUserMessage(t *testing.T) {
	if got := UserMessage(nil); got != "" {
		t.Errorf("UserMessage(nil) = %q", got)
	}
	if got := UserMessage(errors.New("dial tcp: refused")); got != GenericMessage {
		t.Errorf("UserMessage(plain) = %q", got)
	}
	wrapped := errors.Join(errors.New("context"), &Error{Message: "A user with this email address already exists."})
	if got := UserMessage(wrapped); got != "A user with this email address already exists." {
		t.Errorf("UserMessage(wrapped) = %q", got)
	}
}
