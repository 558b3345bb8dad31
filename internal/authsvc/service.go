// Package authsvc is a reference implementation of the authentication and
// enrollment service the kiosk talks to. It is meant for local development
// and end-to-end tests: faces are matched by perceptual hash, not by a
// biometric model.
package authsvc

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/image/draw"

	"github.com/ayusman/facegate/internal/clock"
	"github.com/ayusman/facegate/internal/gateway"
	"github.com/ayusman/facegate/internal/store"
)

const (
	minRegistrationImages = 2
	recentLogLimit        = 50
	thumbnailSize         = 100
	maxBodyBytes          = 32 << 20
)

// Config configures a Service.
type Config struct {
	Store         *store.Store
	MatchDistance int
	Clock         clock.Clock
	Logger        *slog.Logger
}

// Service serves /login, /register, /logout and /admin/data.
type Service struct {
	store    *store.Store
	distance int
	clock    clock.Clock
	logger   *slog.Logger
	router   *chi.Mux

	// enrollMu serialises the duplicate check and the insert of a
	// registration.
	enrollMu sync.Mutex
}

// New creates a Service backed by cfg.Store.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("authsvc: store is required")
	}
	if cfg.MatchDistance <= 0 {
		cfg.MatchDistance = DefaultMatchDistance
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Service{
		store:    cfg.Store,
		distance: cfg.MatchDistance,
		clock:    cfg.Clock,
		logger:   cfg.Logger.With("component", "authsvc"),
		router:   chi.NewRouter(),
	}
	s.setupRoutes()
	return s, nil
}

func (s *Service) setupRoutes() {
	r := s.router
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(chiMiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/login", s.login)
	r.Post("/register", s.register)
	r.Post("/logout", s.logout)
	r.Get("/admin/data", s.adminData)
}

// ServeHTTP implements http.Handler.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chiMiddleware.GetReqID(r.Context()),
			)
		})
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// fail reports a refused request. The service answers 200 with
// success=false so the client shows the message verbatim.
func fail(w http.ResponseWriter, message string) {
	respondJSON(w, http.StatusOK, gateway.Envelope{Success: false, Message: message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondJSON(w, http.StatusBadRequest, gateway.Envelope{Message: "Invalid request body."})
		return false
	}
	return true
}

type loginResponse struct {
	Success bool `json:"success"`
	gateway.LoginResult
}

func (s *Service) login(w http.ResponseWriter, r *http.Request) {
	var req gateway.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	hash, err := hashDataURL(req.Image)
	if err != nil {
		fail(w, "Invalid image data.")
		return
	}

	userID, err := s.match(hash)
	if err != nil {
		s.internalError(w, "match", err)
		return
	}
	if userID == "" {
		fail(w, "Face not recognized.")
		return
	}

	users := s.store.Users()
	now := s.clock.Now().UTC()
	if err := users.RecordLogin(userID, now); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fail(w, "User data not found.")
			return
		}
		s.internalError(w, "record login", err)
		return
	}
	u, err := users.GetByID(userID)
	if err != nil {
		s.internalError(w, "load user", err)
		return
	}

	if err := s.store.AccessLog().Append(&store.AccessEntry{UserID: u.UserID, Name: u.Name, Action: store.ActionIn, CreatedAt: now}); err != nil {
		s.logger.Warn("access log append failed", "error", err)
	}

	stored, err := s.store.Enrollments().FirstImage(userID)
	if err != nil {
		fail(w, "Stored image not found.")
		return
	}

	s.logger.Info("login", "user_id", u.UserID, "login_count", u.LoginCount)
	respondJSON(w, http.StatusOK, loginResponse{
		Success: true,
		LoginResult: gateway.LoginResult{
			User:  toWireUser(u),
			Image: base64.StdEncoding.EncodeToString(stored),
		},
	})
}

type registrationResponse struct {
	Success bool `json:"success"`
	gateway.RegistrationResult
}

func (s *Service) register(w http.ResponseWriter, r *http.Request) {
	var req gateway.RegistrationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p := req.Profile.Normalize()

	if len(req.Images) == 0 {
		fail(w, "No images provided.")
		return
	}
	if len(req.Images) < minRegistrationImages {
		fail(w, fmt.Sprintf("At least %d images are required for reliable recognition. Received %d.", minRegistrationImages, len(req.Images)))
		return
	}
	if p.Name == "" {
		fail(w, "Name is required.")
		return
	}

	s.enrollMu.Lock()
	defer s.enrollMu.Unlock()

	users := s.store.Users()
	if p.Email != "" {
		if _, err := users.GetByEmail(p.Email); err == nil {
			fail(w, "A user with this email address already exists.")
			return
		} else if !errors.Is(err, store.ErrNotFound) {
			s.internalError(w, "email lookup", err)
			return
		}
	}

	samples := make([]store.Enrollment, len(req.Images))
	hashes := make([]uint64, len(req.Images))
	for i, encoded := range req.Images {
		data, err := gateway.DecodeDataURL(encoded)
		if err != nil {
			fail(w, fmt.Sprintf("Invalid image data for image %d.", i+1))
			return
		}
		img, err := decodeStill(data)
		if err != nil {
			fail(w, fmt.Sprintf("Invalid image data for image %d.", i+1))
			return
		}
		hashes[i] = DHash(img)
		samples[i] = store.Enrollment{SampleIndex: i, Hash: hashes[i], Image: data}
	}

	matched, err := s.match(hashes[0])
	if err != nil {
		s.internalError(w, "match", err)
		return
	}
	if matched != "" {
		name := matched
		if u, err := users.GetByID(matched); err == nil {
			name = u.Name
		}
		fail(w, fmt.Sprintf("This face is already registered under \"%s\".", name))
		return
	}

	u := &store.User{
		UserID:           uuid.NewString()[:8],
		Name:             p.Name,
		Email:            p.Email,
		Phone:            p.Phone,
		DateOfBirth:      p.DateOfBirth,
		Gender:           p.Gender,
		Address:          p.Address,
		Department:       p.Department,
		Position:         p.Position,
		EmergencyContact: p.EmergencyContact,
		EmergencyPhone:   p.EmergencyPhone,
		TrainingQuality:  trainingQuality(hashes),
		RegistrationDate: s.clock.Now().UTC(),
	}
	if err := s.store.Enrollments().Enroll(u, samples); err != nil {
		if errors.Is(err, store.ErrConflict) {
			fail(w, "A user with this email address already exists.")
			return
		}
		s.logger.Error("enroll failed", "error", err)
		fail(w, "Failed to save user data.")
		return
	}

	s.logger.Info("registered", "user_id", u.UserID, "photos", len(samples), "quality", u.TrainingQuality)
	respondJSON(w, http.StatusOK, registrationResponse{
		Success: true,
		RegistrationResult: gateway.RegistrationResult{
			UserID:          u.UserID,
			Name:            u.Name,
			Email:           u.Email,
			TrainingPhotos:  len(samples),
			ValidPhotos:     len(samples),
			TrainingQuality: u.TrainingQuality,
		},
	})
}

func (s *Service) logout(w http.ResponseWriter, r *http.Request) {
	var req gateway.LogoutRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" && req.Name == "" {
		fail(w, "User ID or name is required.")
		return
	}
	userID := req.UserID
	if userID == "" {
		userID = req.Name
	}

	entry := &store.AccessEntry{UserID: userID, Name: req.Name, Action: store.ActionOut, CreatedAt: s.clock.Now().UTC()}
	if err := s.store.AccessLog().Append(entry); err != nil {
		s.internalError(w, "access log append", err)
		return
	}
	respondJSON(w, http.StatusOK, gateway.Envelope{Success: true, Message: "Logout logged successfully."})
}

// match returns the enrolled user whose closest still is within the match
// distance of hash, or "" when nobody is close enough.
func (s *Service) match(hash uint64) (string, error) {
	enrolled, err := s.store.Enrollments().Hashes()
	if err != nil {
		return "", err
	}
	best, bestDist := "", math.MaxInt
	for _, e := range enrolled {
		if d := HammingDistance(hash, e.Hash); d < bestDist {
			best, bestDist = e.UserID, d
		}
	}
	if bestDist > s.distance {
		return "", nil
	}
	return best, nil
}

func (s *Service) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error("request failed", "op", op, "error", err)
	respondJSON(w, http.StatusInternalServerError, gateway.Envelope{Message: "Internal server error."})
}

func hashDataURL(encoded string) (uint64, error) {
	data, err := gateway.DecodeDataURL(encoded)
	if err != nil {
		return 0, err
	}
	img, err := decodeStill(data)
	if err != nil {
		return 0, err
	}
	return DHash(img), nil
}

const timeLayout = "2006-01-02 15:04:05"

func toWireUser(u *store.User) gateway.User {
	out := gateway.User{
		UserID:           u.UserID,
		Name:             u.Name,
		Email:            u.Email,
		Phone:            u.Phone,
		DateOfBirth:      u.DateOfBirth,
		Gender:           u.Gender,
		Address:          u.Address,
		Department:       u.Department,
		Position:         u.Position,
		EmergencyContact: u.EmergencyContact,
		EmergencyPhone:   u.EmergencyPhone,
		RegistrationDate: u.RegistrationDate.UTC().Format(timeLayout),
		LoginCount:       u.LoginCount,
	}
	if u.LastLogin != nil {
		out.LastLogin = u.LastLogin.UTC().Format(timeLayout)
	}
	return out
}

// thumbnail re-encodes a still as a small JPEG for the admin listing.
func thumbnail(data []byte) (string, error) {
	img, err := decodeStill(data)
	if err != nil {
		return "", err
	}
	dst := image.NewRGBA(image.Rect(0, 0, thumbnailSize, thumbnailSize))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 80}); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
