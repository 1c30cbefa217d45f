// Package types defines the shared domain types for the library sync service.
package types

import "time"

// NetworkID identifies an external gaming platform
type NetworkID string

const (
	NetworkSteam       NetworkID = "steam"
	NetworkXbox        NetworkID = "xbox"
	NetworkPlayStation NetworkID = "playstation"
	NetworkGOG         NetworkID = "gog"
)

// AllNetworks returns every network the service can sync with, in a stable order
func AllNetworks() []NetworkID {
	return []NetworkID{NetworkSteam, NetworkXbox, NetworkPlayStation, NetworkGOG}
}

// IsValid reports whether the network is one of the supported platforms
func (n NetworkID) IsValid() bool {
	switch n {
	case NetworkSteam, NetworkXbox, NetworkPlayStation, NetworkGOG:
		return true
	default:
		return false
	}
}

// StoreSlug returns the catalog store slug games from this network resolve against
func (n NetworkID) StoreSlug() string {
	return string(n)
}

// GameStatus is a user's library status for a game
type GameStatus string

const (
	StatusOwned   GameStatus = "owned"
	StatusPlaying GameStatus = "playing"
	StatusToPlay  GameStatus = "toplay"
	StatusBeaten  GameStatus = "beaten"
	StatusDropped GameStatus = "dropped"
)

// ImportStatus is the terminal per-network outcome of one import attempt
type ImportStatus string

const (
	// ImportReady means the network's library was fetched and merged
	ImportReady ImportStatus = "ready"
	// ImportError means the account does not exist or is private (permanent)
	ImportError ImportStatus = "error"
	// ImportUnavailable means the network failed transiently (retryable)
	ImportUnavailable ImportStatus = "unavailable"
	// ImportRestart means the network fetch exceeded its deadline; the whole
	// job must be rescheduled rather than finalized with stale state
	ImportRestart ImportStatus = "restart"
)

// RawGame is one owned-game entry as reported by an external platform,
// before resolution against the catalog
type RawGame struct {
	AppID      string
	Name       string
	StoreSlug  string
	Playtime   int // minutes
	LastPlayed time.Time
	Status     GameStatus // source-derived signal, may be empty
}

// RawAchievement is one achievement entry as reported by an external platform
type RawAchievement struct {
	UID         string
	Name        string
	Description string
	Icon        string
	Hidden      bool
	Achieved    time.Time
}

// SyncedGame records one resolved game included in a merge result
type SyncedGame struct {
	GameID int64      `json:"game_id"`
	Status GameStatus `json:"status"`
}

// ServiceError represents a structured service-level error
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	return e.Code + ": " + e.Message
}
