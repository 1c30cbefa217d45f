package models

import (
	"time"

	"github.com/library-sync/internal/types"
)

// User holds the account-linking state the sync engine reads and writes.
// Profile, auth and social fields live elsewhere and are out of scope here.
type User struct {
	ID       int64
	Email    string
	Language string

	// External account references, one per network; empty means not linked
	SteamID      string
	GOGUsername  string
	XboxGamertag string
	PSNOnlineID  string

	// Last recorded per-network import outcome, shown on the user's profile
	SteamSyncStatus string
	GOGSyncStatus   string
	XboxSyncStatus  string
	PSNSyncStatus   string

	// SubscribeMailSync gates the "old resync finished" mail
	SubscribeMailSync bool

	LastVisit time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AccountRef returns the user's account reference for the given network,
// or "" if the account is not linked
func (u *User) AccountRef(network types.NetworkID) string {
	switch network {
	case types.NetworkSteam:
		return u.SteamID
	case types.NetworkXbox:
		return u.XboxGamertag
	case types.NetworkPlayStation:
		return u.PSNOnlineID
	case types.NetworkGOG:
		return u.GOGUsername
	default:
		return ""
	}
}

// SyncStatus returns the last recorded import outcome for the given network,
// or "" if none was recorded
func (u *User) SyncStatus(network types.NetworkID) string {
	switch network {
	case types.NetworkSteam:
		return u.SteamSyncStatus
	case types.NetworkXbox:
		return u.XboxSyncStatus
	case types.NetworkPlayStation:
		return u.PSNSyncStatus
	case types.NetworkGOG:
		return u.GOGSyncStatus
	default:
		return ""
	}
}

// LinkedNetworks returns the networks this user has accounts on
func (u *User) LinkedNetworks() []types.NetworkID {
	var out []types.NetworkID
	for _, n := range types.AllNetworks() {
		if u.AccountRef(n) != "" {
			out = append(out, n)
		}
	}
	return out
}

// UserGame is one per-user library entry for a catalog game
type UserGame struct {
	UserID   int64
	GameID   int64
	Status   types.GameStatus
	Playtime int // minutes, max across networks

	// StatusManual marks a status the user set by hand; imports never
	// overwrite it
	StatusManual bool

	// Platforms the user owns the game on (store slugs)
	Platforms []string

	LastPlayed *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// HasPlatform reports whether the entry already carries the platform tag
func (g *UserGame) HasPlatform(slug string) bool {
	for _, p := range g.Platforms {
		if p == slug {
			return true
		}
	}
	return false
}
