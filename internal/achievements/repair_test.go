package achievements

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/library-sync/internal/models"
)

func TestPlanRepair(t *testing.T) {
	t.Run("empty group", func(t *testing.T) {
		plan := PlanRepair(nil)
		assert.False(t, plan.NeedsRepair())
		assert.Zero(t, plan.SurvivorID)
	})

	t.Run("single parent needs nothing", func(t *testing.T) {
		plan := PlanRepair([]*models.ParentAchievement{
			{ID: 42, Name: "Boss Defeated"},
		})
		assert.False(t, plan.NeedsRepair())
		assert.Equal(t, int64(42), plan.SurvivorID)
	})

	t.Run("lowest id survives", func(t *testing.T) {
		plan := PlanRepair([]*models.ParentAchievement{
			{ID: 17, Name: "Boss Defeated"},
			{ID: 5, Name: "Boss Defeated"},
			{ID: 23, Name: "Boss Defeated"},
		})
		assert.True(t, plan.NeedsRepair())
		assert.Equal(t, int64(5), plan.SurvivorID)
		assert.ElementsMatch(t, []int64{17, 23}, plan.LoserIDs)
	})

	t.Run("order of snapshot does not matter", func(t *testing.T) {
		a := PlanRepair([]*models.ParentAchievement{{ID: 9}, {ID: 3}})
		b := PlanRepair([]*models.ParentAchievement{{ID: 3}, {ID: 9}})
		assert.Equal(t, a.SurvivorID, b.SurvivorID)
		assert.ElementsMatch(t, a.LoserIDs, b.LoserIDs)
	})

	t.Run("pair collapses to one loser", func(t *testing.T) {
		plan := PlanRepair([]*models.ParentAchievement{
			{ID: 100, Name: "Untitled"},
			{ID: 101, Name: "Untitled"},
		})
		assert.Equal(t, int64(100), plan.SurvivorID)
		assert.Equal(t, []int64{101}, plan.LoserIDs)
	})
}
