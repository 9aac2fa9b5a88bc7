package feedback

import (
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/chereta-io/chereta/internal/model"
)

func TestDiscoverInterests_ThresholdAndSkips(t *testing.T) {
	profile := model.CompanyProfile{
		PrimarySector: "IT",
		ActiveSectors: []string{"IT", "Telecom"},
	}
	positive := map[string]int{
		"Construction": 3,
		"Agriculture":  2,
		"IT":           10,
		"Telecom":      5,
	}

	interests, changed := discoverInterests(profile, positive, nil)
	assert.True(t, changed)
	assert.Equal(t, []string{"Construction"}, interests,
		"below-threshold categories and already-targeted sectors are skipped")
}

func TestDiscoverInterests_PreservesExistingAndCaps(t *testing.T) {
	existing := make([]string, model.MaxDiscoveredInterests)
	for i := range existing {
		existing[i] = string(rune('a' + i))
	}
	profile := model.CompanyProfile{DiscoveredInterests: existing}

	interests, changed := discoverInterests(profile, map[string]int{"Construction": 5}, nil)
	assert.False(t, changed, "a full list accepts no new interests")
	assert.Equal(t, existing, interests)
}

func TestDiscoverInterests_NoDuplicates(t *testing.T) {
	profile := model.CompanyProfile{DiscoveredInterests: []string{"Construction"}}

	interests, changed := discoverInterests(profile, map[string]int{"construction": 7}, nil)
	assert.False(t, changed, "case-folded duplicates are not re-added")
	assert.Equal(t, []string{"Construction"}, interests)
}

func TestDiscoverInterests_Deterministic(t *testing.T) {
	profile := model.CompanyProfile{}
	positive := map[string]int{"Water": 4, "Energy": 4, "Roads": 4}

	first, _ := discoverInterests(profile, positive, nil)
	for range 5 {
		next, _ := discoverInterests(profile, positive, nil)
		assert.Equal(t, first, next)
	}
	assert.Equal(t, []string{"Energy", "Roads", "Water"}, first)
}

func TestDiscoverInterests_DismissalExclusions(t *testing.T) {
	profile := model.CompanyProfile{PrimarySector: "IT"}
	positive := map[string]int{
		"Construction": 5,
		"Agriculture":  4,
	}

	// A category the user keeps dismissing never becomes an interest, even
	// with positive signal above the discovery threshold.
	excluded := dismissalExclusions(
		map[string]int{"Construction": 3, "Energy": 1},
		map[string]int{"Somali": 4},
	)
	interests, changed := discoverInterests(profile, positive, excluded)
	assert.True(t, changed)
	assert.Equal(t, []string{"Agriculture"}, interests)
}

func TestDismissalExclusions_Threshold(t *testing.T) {
	out := dismissalExclusions(
		map[string]int{"Construction": 3, "Energy": 2},
		map[string]int{"Somali": 5, "Oromia": 1},
	)
	assert.ElementsMatch(t, []string{"Construction", "Somali"}, out)

	assert.Empty(t, dismissalExclusions(nil, nil))
}

func TestHasDismissalPattern(t *testing.T) {
	assert.False(t, hasDismissalPattern(nil))
	assert.False(t, hasDismissalPattern(map[string]int{"Oromia": 2}))
	assert.True(t, hasDismissalPattern(map[string]int{"Oromia": 3}))
}

func TestLearner_EnqueueDropsWhenFull(t *testing.T) {
	l := NewLearner(nil, 2, slog.Default())

	task := learnTask{UserID: uuid.New(), ProfileID: uuid.New()}
	assert.True(t, l.Enqueue(task))
	assert.True(t, l.Enqueue(task))
	assert.False(t, l.Enqueue(task), "a full queue drops the task")
	assert.Equal(t, int64(1), l.dropped.Load())
}
