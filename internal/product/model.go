package product

import "time"

type Product struct {
	ID          int64
	Name        string
	Description string
	Price       int64
	Stock       int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
