package scoring

import (
	"strings"

	"github.com/SAP-F-2025/session-engine/internal/models"
)

// Result is the outcome of scoring one attempt against its definition.
type Result struct {
	Score       int     `json:"score"`
	TotalPoints int     `json:"total_points"`
	Percentage  float64 `json:"percentage"`
}

// Score grades a full answer map against the definition's questions. It is a
// pure function: unanswered or malformed submissions score zero for that
// question and never produce an error.
func Score(questions []models.Question, answers map[string]models.AnswerValue) Result {
	var result Result
	for i := range questions {
		q := &questions[i]
		result.TotalPoints += q.Points
		value, ok := answers[q.ID]
		if !ok || value.IsEmpty() {
			continue
		}
		if IsCorrect(q, value) {
			result.Score += q.Points
		}
	}
	if result.TotalPoints > 0 {
		result.Percentage = float64(result.Score) / float64(result.TotalPoints) * 100
	}
	return result
}

// IsCorrect compares one submitted value against the question's expected
// answer. Single values compare trimmed and case-folded; answer sets must
// match exactly, order irrelevant.
func IsCorrect(q *models.Question, value models.AnswerValue) bool {
	if !q.IsScorable() {
		return false
	}
	if q.IsMultiAnswer() {
		return setsEqual(q.CorrectAnswers, submittedSet(value))
	}
	submitted := value.Text
	if submitted == "" && len(value.Selections) == 1 {
		// A single selection against a single-answer question is fine.
		submitted = value.Selections[0]
	}
	return normalize(submitted) == normalize(q.CorrectAnswer)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func submittedSet(value models.AnswerValue) []string {
	if len(value.Selections) > 0 {
		return value.Selections
	}
	if value.Text != "" {
		return []string{value.Text}
	}
	return nil
}

// setsEqual checks that the submitted values form exactly the required set:
// every required value present, nothing missing, duplicates collapsed.
func setsEqual(required, submitted []string) bool {
	if len(submitted) == 0 {
		return false
	}
	want := make(map[string]struct{}, len(required))
	for _, r := range required {
		want[normalize(r)] = struct{}{}
	}
	got := make(map[string]struct{}, len(submitted))
	for _, s := range submitted {
		got[normalize(s)] = struct{}{}
	}
	if len(want) != len(got) {
		return false
	}
	for k := range want {
		if _, ok := got[k]; !ok {
			return false
		}
	}
	return true
}
