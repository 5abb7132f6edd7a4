package domain

// TriageStats — агрегаты по action log для дашборда консоли.
type TriageStats struct {
	TotalActions   int64            `json:"total_actions"`
	HeldForReview  int64            `json:"held_for_review"`
	FailedActions  int64            `json:"failed_actions"`
	AutomationRate float64          `json:"automation_rate"` // доля действий без HITL
	TopActions     map[string]int64 `json:"top_actions"`
	HourlyActivity []ActivityPoint  `json:"hourly_activity"`
}

type ActivityPoint struct {
	Hour  string `json:"hour"`
	Count int64  `json:"count"`
}
