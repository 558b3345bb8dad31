package authsvc

import (
	"math"
	"net/http"

	"github.com/ayusman/facegate/internal/store"
)

type adminStatistics struct {
	TotalUsers       int     `json:"total_users"`
	MultiPhotoUsers  int     `json:"multi_photo_users"`
	SinglePhotoUsers int     `json:"single_photo_users"`
	TotalLogins      int     `json:"total_logins"`
	AvgPhotosPerUser float64 `json:"avg_photos_per_user"`
}

type trainingStats struct {
	Photos  int     `json:"photos"`
	Quality float64 `json:"quality"`
	Type    string  `json:"type"`
}

type adminUser struct {
	UserID           string        `json:"user_id"`
	Name             string        `json:"name"`
	Email            string        `json:"email"`
	Phone            string        `json:"phone"`
	DateOfBirth      string        `json:"date_of_birth"`
	Gender           string        `json:"gender"`
	Address          string        `json:"address"`
	Department       string        `json:"department"`
	Position         string        `json:"position"`
	EmergencyContact string        `json:"emergency_contact"`
	EmergencyPhone   string        `json:"emergency_phone"`
	RegistrationDate string        `json:"registration_date"`
	LastLogin        string        `json:"last_login"`
	LoginCount       int           `json:"login_count"`
	Images           []string      `json:"images"`
	TrainingStats    trainingStats `json:"training_stats"`
}

type adminLog struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Timestamp string `json:"timestamp"`
	Action    string `json:"action"`
}

type adminData struct {
	Statistics adminStatistics `json:"statistics"`
	Users      []adminUser     `json:"users"`
	Logs       []adminLog      `json:"logs"`
}

type adminResponse struct {
	Success bool      `json:"success"`
	Data    adminData `json:"data"`
}

func (s *Service) adminData(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.Users().List()
	if err != nil {
		s.internalError(w, "list users", err)
		return
	}
	photos, err := s.store.Enrollments().CountByUser()
	if err != nil {
		s.internalError(w, "count enrollments", err)
		return
	}
	entries, err := s.store.AccessLog().Recent(recentLogLimit)
	if err != nil {
		s.internalError(w, "recent access log", err)
		return
	}
	logins, err := s.store.AccessLog().Count(store.ActionIn)
	if err != nil {
		s.internalError(w, "count logins", err)
		return
	}

	data := adminData{
		Users: make([]adminUser, 0, len(users)),
		Logs:  make([]adminLog, 0, len(entries)),
	}

	totalPhotos := 0
	for _, u := range users {
		wire := toWireUser(u)
		n := photos[u.UserID]
		totalPhotos += n

		stats := trainingStats{Photos: n, Quality: u.TrainingQuality, Type: "multi-photo"}
		switch {
		case n == 0:
			stats.Type = "no-data"
		case n == 1:
			stats.Type = "single-photo"
		default:
			data.Statistics.MultiPhotoUsers++
		}

		images := []string{}
		if img, err := s.store.Enrollments().FirstImage(u.UserID); err == nil {
			if thumb, err := thumbnail(img); err == nil {
				images = append(images, thumb)
			} else {
				s.logger.Warn("thumbnail failed", "user_id", u.UserID, "error", err)
			}
		}

		data.Users = append(data.Users, adminUser{
			UserID:           wire.UserID,
			Name:             wire.Name,
			Email:            wire.Email,
			Phone:            wire.Phone,
			DateOfBirth:      wire.DateOfBirth,
			Gender:           wire.Gender,
			Address:          wire.Address,
			Department:       wire.Department,
			Position:         wire.Position,
			EmergencyContact: wire.EmergencyContact,
			EmergencyPhone:   wire.EmergencyPhone,
			RegistrationDate: wire.RegistrationDate,
			LastLogin:        wire.LastLogin,
			LoginCount:       wire.LoginCount,
			Images:           images,
			TrainingStats:    stats,
		})
	}

	for _, e := range entries {
		data.Logs = append(data.Logs, adminLog{
			UserID:    e.UserID,
			Name:      e.Name,
			Timestamp: e.CreatedAt.UTC().Format(timeLayout),
			Action:    e.Action,
		})
	}

	data.Statistics.TotalUsers = len(users)
	data.Statistics.SinglePhotoUsers = len(users) - data.Statistics.MultiPhotoUsers
	data.Statistics.TotalLogins = logins
	if len(users) > 0 {
		data.Statistics.AvgPhotosPerUser = math.Round(float64(totalPhotos)/float64(len(users))*100) / 100
	}

	respondJSON(w, http.StatusOK, adminResponse{Success: true, Data: data})
}
