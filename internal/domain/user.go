package domain

import "time"

// User is a directory entry for an agent that tickets can be assigned to.
type User struct {
	ID        string
	Email     string
	Name      string
	Role      Role
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
