package models

import "time"

const RoleAdmin = "Admin"

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Requester identifies the authenticated caller of a read operation.
type Requester struct {
	UserID  string
	IsAdmin bool
}

type Notification struct {
	ID        string    `json:"id" bson:"_id"`
	UserID    string    `json:"user" bson:"user"`
	Message   string    `json:"message" bson:"message"`
	Link      string    `json:"link,omitempty" bson:"link,omitempty"`
	IsRead    bool      `json:"is_read" bson:"isRead"`
	CreatedAt time.Time `json:"created_at" bson:"createdAt"`
}
