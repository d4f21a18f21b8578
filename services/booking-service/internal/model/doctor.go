package model

import "time"

type Doctor struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Specialty       string     `json:"specialty"`
	Description     string     `json:"description,omitempty"`
	ProfileImageURL string     `json:"profile_image_url,omitempty"`
	ArchivedAt      *time.Time `json:"archived_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
