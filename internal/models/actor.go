package models

import (
	"strings"

	"github.com/google/uuid"
)

type Role string

const (
	RoleCM         Role = "CM"
	RoleAM         Role = "AM"
	RoleJE         Role = "JE"
	RoleSDO        Role = "SDO"
	RoleGM         Role = "GM"
	RoleManager    Role = "MANAGER"
	RoleContractor Role = "CONTRACTOR"
	RoleWorker     Role = "WORKER"
	RoleSystem     Role = "SYSTEM"
)

// ParseRole normalises a role claim. Unknown values are returned as-is so the
// role checks simply fail to match them.
func ParseRole(s string) Role {
	return Role(strings.ToUpper(strings.TrimSpace(s)))
}

// Actor is the identity performing an operation.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// SystemActor is used by background jobs.
func SystemActor() Actor {
	return Actor{ID: uuid.Nil, Role: RoleSystem}
}

func (a Actor) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}
