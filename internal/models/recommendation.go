package models

// RecommendationKind distinguishes the two recommendation categories.
type RecommendationKind string

const (
	RecommendationTask   RecommendationKind = "task"
	RecommendationAdvice RecommendationKind = "advice"
)

// RecommendationsPerKind is the exact number of items kept per category.
const RecommendationsPerKind = 5

// RecommendationSet holds exactly RecommendationsPerKind tasks and advice
// items for one email.
type RecommendationSet struct {
	EmailID      int64    `json:"email_id"`
	ProjectTitle string   `json:"project_title"`
	Tasks        []string `json:"tasks"`
	Advice       []string `json:"advice"`
}
