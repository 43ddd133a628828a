// Package missions generates daily missions and tracks progress and claims
// against them.
package missions

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/praxislms/progression-engine/internal/catalog"
	"github.com/praxislms/progression-engine/internal/models"
	"github.com/praxislms/progression-engine/internal/progression"
)

// MissionsPerDay is the size of every generated mission set.
const MissionsPerDay = 3

// Generator instantiates a day's mission set from the catalog. Template
// selection cycles the catalog by day index rather than sampling, so the
// same day yields the same archetypes; only the targets are random.
type Generator struct {
	templates []catalog.MissionTemplate
	loc       *time.Location

	mu  sync.Mutex // rand.Rand is not safe for concurrent use
	rnd *rand.Rand
}

// NewGenerator creates a generator. rnd may be seeded deterministically in
// tests; pass nil for a time-seeded source.
func NewGenerator(cat *catalog.Catalog, loc *time.Location, rnd *rand.Rand) *Generator {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Generator{
		templates: cat.Missions,
		loc:       loc,
		rnd:       rnd,
	}
}

// Generate builds the mission set for a user at the given instant. Rows are
// not persisted here; the caller batches them so a storage failure produces
// no partial set.
func (g *Generator) Generate(userID string, now time.Time) []models.Mission {
	local := now.In(g.loc)
	cycleDate := local.Format("2006-01-02")
	expiresAt := nextMidnight(local, g.loc)
	dayIndex := local.Year()*366 + local.YearDay()

	missions := make([]models.Mission, 0, MissionsPerDay)
	for i := 0; i < MissionsPerDay; i++ {
		tmpl := &g.templates[(dayIndex+i)%len(g.templates)]
		target := g.rollTarget(tmpl)

		missions = append(missions, models.Mission{
			UserID:      userID,
			Type:        tmpl.Type,
			Description: fmt.Sprintf(tmpl.Description, target),
			TargetCount: target,
			RewardCoins: int64(math.Floor(float64(target) * tmpl.RewardCoinsPerUnit)),
			RewardXP:    int64(math.Floor(float64(target) * tmpl.RewardXPPerUnit)),
			ExpiresAt:   expiresAt,
			CycleDate:   cycleDate,
			CycleIndex:  i,
		})
	}
	return missions
}

// rollTarget draws an inclusive random target from the template's range.
// Coin-earning targets are rounded up to the next multiple of 100.
func (g *Generator) rollTarget(tmpl *catalog.MissionTemplate) int {
	g.mu.Lock()
	target := tmpl.TargetMin + g.rnd.Intn(tmpl.TargetMax-tmpl.TargetMin+1)
	g.mu.Unlock()

	if tmpl.Type == progression.ActivityEarnCoins {
		target = ((target + 99) / 100) * 100
	}
	return target
}

// nextMidnight returns the next local-midnight boundary after t. A set
// generated at 23:00 expires an hour later, not 24 hours later.
func nextMidnight(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
}
