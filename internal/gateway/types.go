package gateway

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// ErrInvalidProfile is returned by Profile.Validate.
var ErrInvalidProfile = errors.New("invalid profile")

// Profile is the registration form data sent alongside the samples.
type Profile struct {
	Name             string `json:"name"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	DateOfBirth      string `json:"dateOfBirth"`
	Gender           string `json:"gender"`
	Address          string `json:"address"`
	Department       string `json:"department"`
	Position         string `json:"position"`
	EmergencyContact string `json:"emergencyContact"`
	EmergencyPhone   string `json:"emergencyPhone"`
}

// Normalize trims every field and lower-cases the email.
func (p Profile) Normalize() Profile {
	trim := strings.TrimSpace
	return Profile{
		Name:             trim(p.Name),
		Email:            strings.ToLower(trim(p.Email)),
		Phone:            trim(p.Phone),
		DateOfBirth:      trim(p.DateOfBirth),
		Gender:           trim(p.Gender),
		Address:          trim(p.Address),
		Department:       trim(p.Department),
		Position:         trim(p.Position),
		EmergencyContact: trim(p.EmergencyContact),
		EmergencyPhone:   trim(p.EmergencyPhone),
	}
}

// Validate checks the fields a registration cannot proceed without.
func (p Profile) Validate() error {
	p = p.Normalize()
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProfile)
	}
	if p.Email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidProfile)
	}
	if _, err := mail.ParseAddress(p.Email); err != nil {
		return fmt.Errorf("%w: email %q is not valid", ErrInvalidProfile, p.Email)
	}
	return nil
}

// User is an enrolled user as reported by the service.
type User struct {
	UserID           string `json:"user_id"`
	Name             string `json:"name"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	DateOfBirth      string `json:"date_of_birth"`
	Gender           string `json:"gender"`
	Address          string `json:"address"`
	Department       string `json:"department"`
	Position         string `json:"position"`
	EmergencyContact string `json:"emergency_contact"`
	EmergencyPhone   string `json:"emergency_phone"`
	RegistrationDate string `json:"registration_date"`
	LastLogin        string `json:"last_login"`
	LoginCount       int    `json:"login_count"`
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Image string `json:"image"`
}

// LoginResult is a successful login response. Image is the enrolled
// reference photo, base64 encoded.
type LoginResult struct {
	User
	Image   string `json:"image"`
	Message string `json:"message,omitempty"`
}

// RegistrationRequest is the body of POST /register.
type RegistrationRequest struct {
	Profile
	Images []string `json:"images"`
}

// RegistrationResult is a successful registration response.
type RegistrationResult struct {
	UserID          string  `json:"user_id"`
	Name            string  `json:"name"`
	Email           string  `json:"email"`
	TrainingPhotos  int     `json:"training_photos"`
	ValidPhotos     int     `json:"valid_photos"`
	TrainingQuality float64 `json:"training_quality"`
	Message         string  `json:"message,omitempty"`
}

// LogoutRequest is the body of POST /logout.
type LogoutRequest struct {
	UserID string `json:"user_id,omitempty"`
	Name   string `json:"name"`
}

// Envelope carries the success flag and optional message present in every
// service response.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

const dataURLPrefix = "data:image/jpeg;base64,"

// DataURL encodes a JPEG still as a data URL.
func DataURL(jpeg []byte) string {
	return dataURLPrefix + base64.StdEncoding.EncodeToString(jpeg)
}

// DecodeDataURL extracts the payload of a base64 data URL. A bare base64
// string is accepted as well.
func DecodeDataURL(s string) ([]byte, error) {
	payload := s
	if strings.HasPrefix(s, "data:") {
		_, after, ok := strings.Cut(s, ",")
		if !ok {
			return nil, errors.New("malformed data url")
		}
		payload = after
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("empty image")
	}
	return data, nil
}
