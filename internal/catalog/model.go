package catalog

import "time"

type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Slug        string  `json:"slug"`
	Description *string `json:"description,omitempty"`
	// Price is in VND, no fractional units.
	Price     int64     `json:"price"`
	Stock     int       `json:"stock"`
	Sold      int       `json:"sold"`
	ImageURL  *string   `json:"imageurl,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	ProductStatusActive  = "active"
	ProductStatusDisable = "disable"
)
