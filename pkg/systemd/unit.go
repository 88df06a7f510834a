package systemd

import "time"

// Unit is the subset of unit properties the status command prints.
type Unit struct {
	Name        string
	Description string
	LoadState   string
	ActiveState string
	SubState    string
	ActiveSince time.Time
}

// Running reports whether the unit is active.
func (u Unit) Running() bool { return u.ActiveState == "active" }
