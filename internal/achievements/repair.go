package achievements

import "github.com/library-sync/internal/models"

// RepairPlan describes how to collapse duplicate parent achievements created
// under a creation race: the lowest-id parent survives, every other parent's
// children are reassigned to it, and the losers are deleted.
type RepairPlan struct {
	SurvivorID int64
	LoserIDs   []int64
}

// NeedsRepair reports whether the plan has anything to do
func (p RepairPlan) NeedsRepair() bool {
	return len(p.LoserIDs) > 0
}

// PlanRepair computes the repair for one group of parents sharing the same
// identity key. Pure: concurrency shows up only in the snapshot handed in,
// so the winner choice is unit-testable without racing writers.
func PlanRepair(parents []*models.ParentAchievement) RepairPlan {
	if len(parents) == 0 {
		return RepairPlan{}
	}

	survivor := parents[0]
	for _, p := range parents[1:] {
		if p.ID < survivor.ID {
			survivor = p
		}
	}

	plan := RepairPlan{SurvivorID: survivor.ID}
	for _, p := range parents {
		if p.ID != survivor.ID {
			plan.LoserIDs = append(plan.LoserIDs, p.ID)
		}
	}
	return plan
}
