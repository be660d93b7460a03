package tracker

import (
	"encoding/json"
	"sort"
)

// Project проект
type Project struct {
	ID                         string                 `json:"id"`
	Name                       string                 `json:"name"`
	Description                string                 `json:"description,omitempty"`
	Status                     string                 `json:"status"`
	Priority                   string                 `json:"priority"`
	StartDate                  string                 `json:"start_date,omitempty"`
	EndDate                    string                 `json:"end_date,omitempty"`
	Budget                     string                 `json:"budget,omitempty"`
	ClientName                 string                 `json:"client_name,omitempty"`
	IsActive                   bool                   `json:"is_active"`
	CreatedBy                  string                 `json:"created_by,omitempty"`
	RequirementsCount          int                    `json:"requirements_count"`
	CompletedRequirementsCount int                    `json:"completed_requirements_count"`
	ProgressPercentage         float64                `json:"progress_percentage"`
	DynamicFields              map[string]interface{} `json:"dynamic_fields,omitempty"`
	CreatedAt                  string                 `json:"created_at"`
	UpdatedAt                  string                 `json:"updated_at,omitempty"`
}

// Requirement требование проекта
type Requirement struct {
	ID                 string                 `json:"id"`
	ProjectID          string                 `json:"project_id"`
	Title              string                 `json:"title"`
	Description        string                 `json:"description,omitempty"`
	Type               string                 `json:"type"`
	Priority           string                 `json:"priority"`
	Status             string                 `json:"status"`
	Complexity         string                 `json:"complexity,omitempty"`
	EstimatedHours     string                 `json:"estimated_hours,omitempty"`
	ActualHours        string                 `json:"actual_hours,omitempty"`
	DueDate            string                 `json:"due_date,omitempty"`
	CompletionDate     string                 `json:"completion_date,omitempty"`
	AssignedTo         string                 `json:"assigned_to,omitempty"`
	CreatedBy          string                 `json:"created_by,omitempty"`
	IsOverdue          bool                   `json:"is_overdue"`
	DaysUntilDue       *int                   `json:"days_until_due,omitempty"`
	ProgressPercentage float64                `json:"progress_percentage"`
	DynamicFields      map[string]interface{} `json:"dynamic_fields,omitempty"`
	CreatedAt          string                 `json:"created_at"`
	UpdatedAt          string                 `json:"updated_at,omitempty"`
}

// Count элемент разбивки отчета
type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Breakdown разбивка по значению признака. Бэкенд присылает элементы
// вида {"<признак>": "значение", "count": n}.
type Breakdown []Count

// UnmarshalJSON читает элементы с произвольным именем признака
func (b *Breakdown) UnmarshalJSON(data []byte) error {
	var raw []map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(Breakdown, 0, len(raw))
	for _, item := range raw {
		var c Count
		if n, ok := item["count"].(float64); ok {
			c.Count = int(n)
		}
		keys := make([]string, 0, len(item))
		for k := range item {
			if k != "count" {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s, ok := item[k].(string); ok {
				c.Key = s
				break
			}
		}
		out = append(out, c)
	}
	*b = out
	return nil
}

// Total сумма счетчиков
func (b Breakdown) Total() int {
	total := 0
	for _, c := range b {
		total += c.Count
	}
	return total
}

// DashboardSummary сводные показатели
type DashboardSummary struct {
	TotalProjects         int `json:"total_projects"`
	ActiveProjects        int `json:"active_projects"`
	TotalRequirements     int `json:"total_requirements"`
	CompletedRequirements int `json:"completed_requirements"`
	OverdueRequirements   int `json:"overdue_requirements"`
	RecentProjects        int `json:"recent_projects"`
	RecentRequirements    int `json:"recent_requirements"`
}

// Dashboard отчет /reports/dashboard
type Dashboard struct {
	Summary                DashboardSummary `json:"summary"`
	ProjectsByStatus       Breakdown        `json:"projects_by_status"`
	RequirementsByStatus   Breakdown        `json:"requirements_by_status"`
	RequirementsByType     Breakdown        `json:"requirements_by_type"`
	RequirementsByPriority Breakdown        `json:"requirements_by_priority"`
}

// ProjectStatistics показатели проекта
type ProjectStatistics struct {
	TotalRequirements     int     `json:"total_requirements"`
	CompletedRequirements int     `json:"completed_requirements"`
	OverdueRequirements   int     `json:"overdue_requirements"`
	CompletionRate        float64 `json:"completion_rate"`
}

// ProjectSummary отчет /reports/project/{id}/summary
type ProjectSummary struct {
	Project                Project           `json:"project"`
	Statistics             ProjectStatistics `json:"statistics"`
	RequirementsByStatus   Breakdown         `json:"requirements_by_status"`
	RequirementsByType     Breakdown         `json:"requirements_by_type"`
	RequirementsByPriority Breakdown         `json:"requirements_by_priority"`
}
