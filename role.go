package core

import "sync"

type Role uint8

const (
	RoleOwner Role = 1 << 0
	RoleAdmin Role = 1 << 1
)

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "Owner"
	case RoleAdmin:
		return "Admin"
	case RoleOwner | RoleAdmin:
		return "Owner|Admin"
	default:
		return "None"
	}
}

// Roles maps an address to its capability flags.
type Roles struct {
	mu    sync.RWMutex
	flags map[string]Role
}

func NewRoles(owner, admin string) *Roles {
	r := &Roles{flags: make(map[string]Role)}
	r.SetFlag(owner, RoleOwner)
	r.SetFlag(admin, RoleAdmin)
	return r
}

func (r *Roles) SetFlag(addr string, flag Role) {
	if addr == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flags[addr] |= flag
}

func (r *Roles) UnsetFlag(addr string, flag Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flags[addr] &= ^flag
	if r.flags[addr] == 0 {
		delete(r.flags, addr)
	}
}

func (r *Roles) GetFlag(addr string, flag Role) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.flags[addr]&flag != 0
}

// Require fails with ErrUnauthorized unless addr carries one of flags.
func (r *Roles) Require(addr string, flag Role) error {
	if !r.GetFlag(addr, flag) {
		return ErrUnauthorized
	}
	return nil
}
