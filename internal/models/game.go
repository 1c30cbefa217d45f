// Package models defines the persisted data model for the library sync service.
package models

import "time"

// Game is one canonical catalog entry
type Game struct {
	ID       int64
	Name     string
	NameRu   string
	Slug     string
	Released *time.Time
	Hidden   bool
}

// GameStore is a per-store external-id mapping for a catalog game.
// A store-id match is the least ambiguous resolution signal and always wins.
type GameStore struct {
	ID         int64
	GameID     int64
	StoreSlug  string
	ExternalID string
}

// GameSynonym is an alternate lowercase name recorded against a catalog game
type GameSynonym struct {
	ID     int64
	GameID int64
	Name   string
}

// GameRedirect maps a deleted game's slug to its merge survivor so external
// links keep resolving
type GameRedirect struct {
	ID        int64
	OldSlug   string
	NewSlug   string
	GameID    int64
	CreatedAt time.Time
}

// SimilarGame is a candidate duplicate pair pending a merge decision.
// Canonical ordering: FirstGameID < SecondGameID.
type SimilarGame struct {
	ID             int64
	FirstGameID    int64
	SecondGameID   int64
	IsIgnored      bool
	SelectedGameID *int64
	CreatedAt      time.Time
}

// SyncEligibleStores lists the store slugs an import can attach a user's
// library entry to. A game listed on none of these is skipped by synonym and
// name resolution so a physical copy is not attached to an unrelated
// digital-only entry.
var SyncEligibleStores = []string{"steam", "xbox", "playstation", "gog"}
