package moods

import "pairmood/api/internal/store"

// scoreTable maps each mood category onto a fixed happiness scale used
// for charting. Unknown values fall back to a neutral 5.
var scoreTable = map[store.Mood]int{
	store.MoodHappy:     8,
	store.MoodLoved:     9,
	store.MoodEnergetic: 7,
	store.MoodCalm:      6,
	store.MoodStressed:  4,
	store.MoodSad:       3,
	store.MoodAngry:     2,
}

const neutralScore = 5

// ScoreOf returns the chart score for a mood category.
func ScoreOf(mood store.Mood) int {
	if score, ok := scoreTable[mood]; ok {
		return score
	}
	return neutralScore
}

// ChartValue is the derived chart magnitude for an entry. It is
// computed on read and never persisted.
func ChartValue(mood store.Mood, intensity int) float64 {
	return float64(ScoreOf(mood)) * float64(intensity) / 10
}
