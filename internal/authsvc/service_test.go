package authsvc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/facegate/internal/clock"
	"github.com/ayusman/facegate/internal/gateway"
	"github.com/ayusman/facegate/internal/store"
	"github.com/ayusman/facegate/testdata"
)

type harness struct {
	store  *store.Store
	server *httptest.Server
	client *gateway.Client
	clock  *clock.FakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	st, err := store.New(filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	clk := clock.Fake(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := New(Config{Store: st, Clock: clk, Logger: logger})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	srv := httptest.NewServer(svc)
	t.Cleanup(srv.Close)

	client, err := gateway.New(gateway.Config{BaseURL: srv.URL, Timeout: 5 * time.Second, Logger: logger})
	if err != nil {
		t.Fatalf("gateway.New() error = %v", err)
	}

	return &harness{store: st, server: srv, client: client, clock: clk}
}

func stills(subject testdata.Subject, n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = testdata.Encode(testdata.Image(subject, testdata.Width, testdata.Height, i*5))
	}
	return out
}

var asha = gateway.Profile{Name: "Asha Rao", Email: "asha@example.com", Department: "Ops", Position: "Lead"}

func (h *harness) register(t *testing.T, subject testdata.Subject, p gateway.Profile) *gateway.RegistrationResult {
	t.Helper()
	res, err := h.client.SubmitRegistration(context.Background(), stills(subject, 3), p)
	if err != nil {
		t.Fatalf("SubmitRegistration() error = %v", err)
	}
	return res
}

func wantRejection(t *testing.T, err error, message string) {
	t.Helper()
	var gwErr *gateway.Error
	if !errors.As(err, &gwErr) {
		t.Fatalf("error = %v, want *gateway.Error", err)
	}
	if gwErr.Message != message {
		t.Errorf("Message = %q, want %q", gwErr.Message, message)
	}
}

func TestNew_RequiresStore(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() without store should fail")
	}
}

func TestRegister_Success(t *testing.T) {
	h := newHarness(t)

	res := h.register(t, testdata.SubjectA, asha)

	if len(res.UserID) != 8 {
		t.Errorf("UserID = %q, want 8 characters", res.UserID)
	}
	if res.Name != "Asha Rao" || res.Email != "asha@example.com" {
		t.Errorf("result = %+v", res)
	}
	if res.TrainingPhotos != 3 || res.ValidPhotos != 3 {
		t.Errorf("photos = %d/%d, want 3/3", res.TrainingPhotos, res.ValidPhotos)
	}
	if res.TrainingQuality < 0.8 {
		t.Errorf("TrainingQuality = %v, want consistent stills to score high", res.TrainingQuality)
	}

	u, err := h.store.Users().GetByID(res.UserID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if u.Department != "Ops" || u.Position != "Lead" {
		t.Errorf("stored profile = %+v", u)
	}
}

func TestRegister_Rejections(t *testing.T) {
	h := newHarness(t)
	h.register(t, testdata.SubjectA, asha)
	ctx := context.Background()

	tests := []struct {
		name    string
		images  [][]byte
		profile gateway.Profile
		want    string
	}{
		{
			name:    "no images",
			images:  nil,
			profile: gateway.Profile{Name: "Ben", Email: "ben@example.com"},
			want:    "No images provided.",
		},
		{
			name:    "one image",
			images:  stills(testdata.SubjectB, 1),
			profile: gateway.Profile{Name: "Ben", Email: "ben@example.com"},
			want:    "At least 2 images are required for reliable recognition. Received 1.",
		},
		{
			name:    "duplicate email",
			images:  stills(testdata.SubjectB, 3),
			profile: gateway.Profile{Name: "Other", Email: " ASHA@example.com "},
			want:    "A user with this email address already exists.",
		},
		{
			name:    "invalid image",
			images:  [][]byte{testdata.JPEG(testdata.SubjectB), []byte("not a jpeg")},
			profile: gateway.Profile{Name: "Ben", Email: "ben@example.com"},
			want:    "Invalid image data for image 2.",
		},
		{
			name:    "face already registered",
			images:  stills(testdata.SubjectA, 3),
			profile: gateway.Profile{Name: "Impostor", Email: "imp@example.com"},
			want:    `This face is already registered under "Asha Rao".`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.client.SubmitRegistration(ctx, tt.images, tt.profile)
			wantRejection(t, err, tt.want)
		})
	}

	n, err := h.store.Users().Count()
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 1 {
		t.Errorf("users after rejections = %d, want 1", n)
	}
}

func TestLogin_RecognizesEnrolledUser(t *testing.T) {
	h := newHarness(t)
	reg := h.register(t, testdata.SubjectA, asha)

	res, err := h.client.SubmitLogin(context.Background(), testdata.JPEG(testdata.SubjectA))
	if err != nil {
		t.Fatalf("SubmitLogin() error = %v", err)
	}
	if res.UserID != reg.UserID || res.Name != "Asha Rao" {
		t.Errorf("login result = %+v", res.User)
	}
	if res.LoginCount != 1 {
		t.Errorf("LoginCount = %d, want 1", res.LoginCount)
	}
	if res.LastLogin != "2024-03-01 09:00:00" {
		t.Errorf("LastLogin = %q", res.LastLogin)
	}

	stored, err := base64.StdEncoding.DecodeString(res.Image)
	if err != nil {
		t.Fatalf("response image is not raw base64: %v", err)
	}
	if first := stills(testdata.SubjectA, 1)[0]; !bytes.Equal(stored, first) {
		t.Error("response image is not the first enrolled still")
	}

	h.clock.Advance(time.Hour)
	res, err = h.client.SubmitLogin(context.Background(), testdata.JPEG(testdata.SubjectA))
	if err != nil {
		t.Fatalf("second SubmitLogin() error = %v", err)
	}
	if res.LoginCount != 2 {
		t.Errorf("LoginCount = %d, want 2", res.LoginCount)
	}

	ins, err := h.store.AccessLog().Count(store.ActionIn)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if ins != 2 {
		t.Errorf("access log logins = %d, want 2", ins)
	}
}

func TestLogin_Rejections(t *testing.T) {
	h := newHarness(t)
	h.register(t, testdata.SubjectA, asha)

	_, err := h.client.SubmitLogin(context.Background(), testdata.JPEG(testdata.SubjectC))
	wantRejection(t, err, "Face not recognized.")

	_, err = h.client.SubmitLogin(context.Background(), []byte("garbage"))
	wantRejection(t, err, "Invalid image data.")
}

func TestLogin_EmptyDatabase(t *testing.T) {
	h := newHarness(t)
	_, err := h.client.SubmitLogin(context.Background(), testdata.JPEG(testdata.SubjectA))
	wantRejection(t, err, "Face not recognized.")
}

func TestLogout(t *testing.T) {
	h := newHarness(t)

	if err := <-h.client.Logout("ab12cd34", "Asha Rao"); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	entries, err := h.store.AccessLog().Recent(10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Action != store.ActionOut || entries[0].UserID != "ab12cd34" {
		t.Errorf("entries = %+v", entries)
	}

	// A name alone is accepted and used as the id.
	if err := <-h.client.Logout("", "Ben"); err != nil {
		t.Fatalf("Logout(name only) error = %v", err)
	}
	entries, _ = h.store.AccessLog().Recent(1)
	if entries[0].UserID != "Ben" {
		t.Errorf("UserID = %q, want Ben", entries[0].UserID)
	}

	wantRejection(t, <-h.client.Logout("", ""), "User ID or name is required.")
}

func TestMalformedBody(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Post(h.server.URL+"/login", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAdminData(t *testing.T) {
	h := newHarness(t)
	reg := h.register(t, testdata.SubjectA, asha)
	h.register(t, testdata.SubjectB, gateway.Profile{Name: "Ben", Email: "ben@example.com"})

	if _, err := h.client.SubmitLogin(context.Background(), testdata.JPEG(testdata.SubjectA)); err != nil {
		t.Fatalf("SubmitLogin() error = %v", err)
	}
	if err := <-h.client.Logout(reg.UserID, "Asha Rao"); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}

	resp, err := http.Get(h.server.URL + "/admin/data")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()

	var body adminResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if !body.Success {
		t.Fatal("success = false")
	}

	stats := body.Data.Statistics
	if stats.TotalUsers != 2 || stats.MultiPhotoUsers != 2 || stats.SinglePhotoUsers != 0 {
		t.Errorf("statistics = %+v", stats)
	}
	if stats.TotalLogins != 1 {
		t.Errorf("TotalLogins = %d, want 1", stats.TotalLogins)
	}
	if stats.AvgPhotosPerUser != 3 {
		t.Errorf("AvgPhotosPerUser = %v, want 3", stats.AvgPhotosPerUser)
	}

	if len(body.Data.Users) != 2 {
		t.Fatalf("users = %d, want 2", len(body.Data.Users))
	}
	for _, u := range body.Data.Users {
		if len(u.Images) != 1 {
			t.Errorf("user %s has %d thumbnails, want 1", u.UserID, len(u.Images))
		}
		if u.TrainingStats.Photos != 3 || u.TrainingStats.Type != "multi-photo" {
			t.Errorf("training stats = %+v", u.TrainingStats)
		}
	}

	if len(body.Data.Logs) != 2 {
		t.Fatalf("logs = %d, want 2", len(body.Data.Logs))
	}
	if body.Data.Logs[0].Action != store.ActionOut {
		t.Errorf("newest log action = %q, want out", body.Data.Logs[0].Action)
	}
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	resp, err := http.Get(h.server.URL + "/health")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}
