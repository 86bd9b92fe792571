// Package health computes per-project health scores and population statistics.
//
// The score is a weighted composite of on-time delivery, completion and budget
// adherence. Scores are derived on demand and never stored.
package health

import (
	"math"

	"pulseboard/internal/domain"
)

// Weights of the composite score, in percent.
const (
	WeightOnTime     = 50
	WeightCompletion = 30
	WeightBudget     = 20
)

// Bucket thresholds. Each bucket is [threshold, next threshold).
const (
	ExcellentThreshold = 85
	GoodThreshold      = 70
	FairThreshold      = 50
)

// Bucket names.
const (
	BucketExcellent = "excellent"
	BucketGood      = "good"
	BucketFair      = "fair"
	BucketPoor      = "poor"
)

// Breakdown is the health score of one project.
type Breakdown struct {
	ProjectID      string  `json:"project_id"`
	ProjectName    string  `json:"project_name"`
	OnTimeRate     float64 `json:"on_time_rate"`
	CompletionRate float64 `json:"completion_rate"`
	BudgetHealth   float64 `json:"budget_health"`
	TotalScore     int     `json:"total_score"`
}

// Distribution counts projects per bucket.
type Distribution struct {
	Excellent int `json:"excellent"`
	Good      int `json:"good"`
	Fair      int `json:"fair"`
	Poor      int `json:"poor"`
}

// Statistics summarises a population of breakdowns.
type Statistics struct {
	AverageScore          float64      `json:"average_score"`
	Distribution          Distribution `json:"distribution"`
	ProjectsAtRisk        int          `json:"projects_at_risk"`
	AverageOnTimeRate     float64      `json:"average_on_time_rate"`
	AverageCompletionRate float64      `json:"average_completion_rate"`
	AverageBudgetHealth   float64      `json:"average_budget_health"`
	ProjectCount          int          `json:"project_count"`
}

// Calculate scores a project from its tasks and budget fields.
func Calculate(p domain.Project, tasks []domain.Task) Breakdown {
	onTime := OnTimeRate(tasks)
	completion := CompletionRate(tasks)
	budget := BudgetHealth(p.Budget, p.ActualCost)
	return Breakdown{
		ProjectID:      p.ID,
		ProjectName:    p.Name,
		OnTimeRate:     round1(onTime),
		CompletionRate: round1(completion),
		BudgetHealth:   round1(budget),
		TotalScore:     TotalScore(onTime, completion, budget),
	}
}

// OnTimeRate is the share of completed tasks with a due date that finished on or
// before it. With no such tasks there is no evidence of lateness and the rate is 100.
func OnTimeRate(tasks []domain.Task) float64 {
	var withDue, onTime int
	for _, t := range tasks {
		if t.Status != domain.TaskCompleted || t.DueDate == nil {
			continue
		}
		withDue++
		if t.CompletedAt != nil && !t.CompletedAt.After(*t.DueDate) {
			onTime++
		}
	}
	if withDue == 0 {
		return 100
	}
	return float64(onTime) / float64(withDue) * 100
}

// CompletionRate is completed/total*100, 0 for a project without tasks.
func CompletionRate(tasks []domain.Task) float64 {
	if len(tasks) == 0 {
		return 0
	}
	var done int
	for _, t := range tasks {
		if t.Status == domain.TaskCompleted {
			done++
		}
	}
	return float64(done) / float64(len(tasks)) * 100
}

// BudgetHealth is 100 at or under budget and degrades linearly with overspend.
// An unset or zero budget scores 100; an unset actual cost counts as zero spend.
func BudgetHealth(budget, actual *float64) float64 {
	if budget == nil || *budget <= 0 {
		return 100
	}
	spent := 0.0
	if actual != nil {
		spent = *actual
	}
	over := math.Max(0, (spent-*budget)/(*budget)*100)
	return clamp(100-over, 0, 100)
}

// TotalScore combines the three sub-rates with the fixed weights.
func TotalScore(onTime, completion, budget float64) int {
	raw := (WeightOnTime*onTime + WeightCompletion*completion + WeightBudget*budget) / 100
	return int(math.Round(clamp(raw, 0, 100)))
}

// BucketOf returns the bucket name for score.
func BucketOf(score int) string {
	switch {
	case score >= ExcellentThreshold:
		return BucketExcellent
	case score >= GoodThreshold:
		return BucketGood
	case score >= FairThreshold:
		return BucketFair
	default:
		return BucketPoor
	}
}

// AtRisk reports whether a score counts towards projectsAtRisk.
func AtRisk(score int) bool {
	return score < FairThreshold
}

// ScoreAll computes breakdowns for every non-cancelled project. tasksByProject maps
// project id to its tasks.
func ScoreAll(projects []domain.Project, tasksByProject map[string][]domain.Task) []Breakdown {
	out := make([]Breakdown, 0, len(projects))
	for _, p := range projects {
		if p.Status == domain.ProjectCancelled {
			continue
		}
		out = append(out, Calculate(p, tasksByProject[p.ID]))
	}
	return out
}

// Summarize builds population statistics. An empty population yields zeros.
func Summarize(scores []Breakdown) Statistics {
	var s Statistics
	if len(scores) == 0 {
		return s
	}
	var total, onTime, completion, budget float64
	for _, b := range scores {
		total += float64(b.TotalScore)
		onTime += b.OnTimeRate
		completion += b.CompletionRate
		budget += b.BudgetHealth
		switch BucketOf(b.TotalScore) {
		case BucketExcellent:
			s.Distribution.Excellent++
		case BucketGood:
			s.Distribution.Good++
		case BucketFair:
			s.Distribution.Fair++
		default:
			s.Distribution.Poor++
		}
		if AtRisk(b.TotalScore) {
			s.ProjectsAtRisk++
		}
	}
	n := float64(len(scores))
	s.ProjectCount = len(scores)
	s.AverageScore = round1(total / n)
	s.AverageOnTimeRate = round1(onTime / n)
	s.AverageCompletionRate = round1(completion / n)
	s.AverageBudgetHealth = round1(budget / n)
	return s
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
