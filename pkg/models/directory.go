package models

import "time"

// Organization owns packages, offices, and (optionally) workflow templates.
type Organization struct {
	ID        string    `json:"id"`
	Code      string    `json:"code" validate:"required,min=2,uppercase"`
	Name      string    `json:"name" validate:"required,min=1"`
	CreatedAt time.Time `json:"created_at"`
}

// Office is an organizational unit stages are assigned to.
type Office struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id" validate:"required"`
	Code           string    `json:"code"            validate:"required,min=1"`
	Name           string    `json:"name"            validate:"required,min=1"`
	CreatedAt      time.Time `json:"created_at"`
}

// User is the identity snapshot the engine needs. Authentication and session
// handling live outside this module.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email" validate:"required,email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	CreatedAt time.Time `json:"created_at"`
}

// FullName returns the display name, falling back to the email address.
func (u *User) FullName() string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}

		name += u.LastName
	}

	if name == "" {
		return u.Email
	}

	return name
}

// OfficeMembership links a user to an office.
type OfficeMembership struct {
	UserID    string    `json:"user_id"   validate:"required"`
	OfficeID  string    `json:"office_id" validate:"required"`
	CreatedAt time.Time `json:"created_at"`
}
