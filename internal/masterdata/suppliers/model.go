package suppliers

import (
	"time"
)

// Supplier represents a supplier entity. Code is the key orders and products refer to.
type Supplier struct {
	ID        int64     `json:"id" db:"id"`
	Code      string    `json:"code" db:"code"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	Phone     string    `json:"phone" db:"phone"`
	Address   string    `json:"address" db:"address"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SupplierForm is the create/update payload.
type SupplierForm struct {
	Code    string `json:"code" validate:"required,max=64"`
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone" validate:"omitempty,max=32"`
	Address string `json:"address" validate:"omitempty,max=500"`
}

func (f SupplierForm) toSupplier() Supplier {
	return Supplier{Code: f.Code, Name: f.Name, Email: f.Email, Phone: f.Phone, Address: f.Address}
}
