package models

import "time"

// User is the identity behind a session. Guest users never reach the
// database; authenticated users get a row the first time they are seen.
type User struct {
	ID        string    `gorm:"primaryKey;size:128" json:"id"`
	Name      string    `gorm:"size:64" json:"name"`
	Email     string    `gorm:"size:255" json:"email,omitempty"`
	PhotoURL  string    `gorm:"size:512" json:"photoUrl,omitempty"`
	IsGuest   bool      `gorm:"-" json:"isGuest"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}
