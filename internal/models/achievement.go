package models

import (
	"time"

	"github.com/library-sync/internal/types"
)

// ParentAchievement is one logical achievement shared across duplicate or
// alternate listings of the same game. Identified by (name, game_id) for
// resolved games, else (name, game_name).
type ParentAchievement struct {
	ID          int64
	Name        string
	GameID      *int64
	GameName    string
	Percent     float64
	Recalculate bool
	Hidden      bool
	CreatedAt   time.Time
}

// Achievement is one network-specific instance of a parent achievement,
// identified by (uid, network). It owns the icon/description variant for its
// network and the percent-unlocked statistic.
type Achievement struct {
	ID          int64
	ParentID    int64
	UID         string
	Network     types.NetworkID
	Name        string
	Description string
	Icon        string
	Percent     float64
	Recalculate bool
	Hidden      bool
	CreatedAt   time.Time
}

// UserAchievement is one unlock record per (user, achievement). Immutable
// once created except for the achieved timestamp.
type UserAchievement struct {
	UserID        int64
	AchievementID int64
	Achieved      time.Time
	CreatedAt     time.Time
}
