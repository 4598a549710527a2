package entity

import "time"

type User struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	FullName     string    `json:"full_name,omitempty" db:"full_name"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Wins         int       `json:"wins" db:"wins"`
	Losses       int       `json:"losses" db:"losses"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// PublicUser is the profile shape sent to clients. It never carries
// credentials.
type PublicUser struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name,omitempty"`
	Wins     int    `json:"wins"`
	Losses   int    `json:"losses"`
}

func (that *User) Public() *PublicUser {
	if that == nil {
		return nil
	}

	return &PublicUser{
		ID:       that.ID,
		Name:     that.Name,
		FullName: that.FullName,
		Wins:     that.Wins,
		Losses:   that.Losses,
	}
}
