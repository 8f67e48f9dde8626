package utils

import (
	"encoding/json"
	"time"

	"educenter_go/models"
)

// Compact representations used across APIs
type UserShort struct {
	ID        uint        `json:"id"`
	Username  string      `json:"username,omitempty"`
	FullName  string      `json:"full_name,omitempty"`
	Role      models.Role `json:"role,omitempty"`
	BranchID  *uint       `json:"branch_id,omitempty"`
	IsBlocked bool        `json:"is_blocked"`
}

type BranchShort struct {
	ID   uint   `json:"id"`
	Name string `json:"name,omitempty"`
}

type NotificationDTO struct {
	ID        uint        `json:"id"`
	CreatedAt time.Time   `json:"created_at"`
	UserID    uint        `json:"user_id"`
	Title     string      `json:"title"`
	Message   string      `json:"message"`
	Type      string      `json:"type"`
	Channels  []string    `json:"channels"`
	Data      interface{} `json:"data,omitempty"`
	Read      bool        `json:"read"`
	ReadAt    *time.Time  `json:"read_at,omitempty"`
	User      UserShort   `json:"user"`
	Branch    BranchShort `json:"branch"`
}

// ToUserShort maps a user without exposing credentials.
func ToUserShort(u models.User) UserShort {
	return UserShort{
		ID:        u.ID,
		Username:  u.Username,
		FullName:  u.FullName(),
		Role:      u.Role,
		BranchID:  u.BranchID,
		IsBlocked: u.IsBlocked,
	}
}

// ToNotificationDTO maps a models.Notification to the compact DTO.
// User and User.Branch are used when preloaded.
func ToNotificationDTO(n models.Notification) NotificationDTO {
	channels := []string{}
	if len(n.Channels) > 0 {
		_ = json.Unmarshal(n.Channels, &channels)
	}
	var data interface{}
	if len(n.Data) > 0 {
		_ = json.Unmarshal(n.Data, &data)
	}

	dto := NotificationDTO{
		ID:        n.ID,
		CreatedAt: n.CreatedAt,
		UserID:    n.UserID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      n.Type,
		Channels:  channels,
		Data:      data,
		Read:      n.Read,
		ReadAt:    n.ReadAt,
		User:      ToUserShort(n.User),
	}
	if n.User.Branch != nil {
		dto.Branch = BranchShort{ID: n.User.Branch.ID, Name: n.User.Branch.Name}
	}
	return dto
}
