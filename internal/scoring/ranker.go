package scoring

import (
	"sort"

	"github.com/SAP-F-2025/session-engine/internal/models"
)

// Rank builds the leaderboard from the submitted attempts of one definition.
// Sort keys in descending priority: percentage (higher first), time taken
// (lower first), submission timestamp (earlier first). Fully equal tuples
// keep their input order. Ranks are dense, starting at 1.
func Rank(def *models.AssessmentDefinition, attempts []*models.Attempt, names map[string]string) []models.LeaderboardEntry {
	entries := make([]models.LeaderboardEntry, 0, len(attempts))
	for _, a := range attempts {
		if a.Status != models.AttemptStatusSubmitted || a.SubmittedAt == nil {
			continue
		}
		entries = append(entries, models.LeaderboardEntry{
			OwnerID:          a.OwnerID,
			DisplayName:      names[a.OwnerID],
			Score:            a.Score,
			Percentage:       a.Percentage,
			TimeTakenSeconds: a.TimeTakenSeconds(def),
			SubmittedAt:      *a.SubmittedAt,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Percentage != entries[j].Percentage {
			return entries[i].Percentage > entries[j].Percentage
		}
		if entries[i].TimeTakenSeconds != entries[j].TimeTakenSeconds {
			return entries[i].TimeTakenSeconds < entries[j].TimeTakenSeconds
		}
		return entries[i].SubmittedAt.Before(entries[j].SubmittedAt)
	})

	rank := 0
	for i := range entries {
		if i == 0 || !tied(&entries[i-1], &entries[i]) {
			rank++
		}
		entries[i].Rank = rank
	}
	return entries
}

func tied(a, b *models.LeaderboardEntry) bool {
	return a.Percentage == b.Percentage &&
		a.TimeTakenSeconds == b.TimeTakenSeconds &&
		a.SubmittedAt.Equal(b.SubmittedAt)
}
