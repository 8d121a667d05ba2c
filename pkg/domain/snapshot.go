package domain

import (
	"slices"
	"time"
)

// Goal is a user goal as stored by the domain store.
type Goal struct {
	ID          int64      `json:"goal_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	TargetDate  *time.Time `json:"target_date,omitempty"`
}

// Milestone is a step towards a goal.
type Milestone struct {
	ID          int64  `json:"milestone_id"`
	GoalID      int64  `json:"goal_id"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

// Habit is a recurring activity the user tracks.
type Habit struct {
	ID             int64  `json:"habit_id"`
	Description    string `json:"description"`
	FrequencyType  string `json:"frequency_type"`
	FrequencyValue int    `json:"frequency_value"`
}

// ProgressLog is a free-form progress entry.
type ProgressLog struct {
	ID        int64     `json:"log_id"`
	LogType   string    `json:"log_type"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is the read-only domain data attached to a State before a turn.
// The orchestrator never writes to it.
type Snapshot struct {
	Summary    string        `json:"summary,omitempty"`
	Goals      []Goal        `json:"goals,omitempty"`
	Milestones []Milestone   `json:"milestones,omitempty"`
	Habits     []Habit       `json:"habits,omitempty"`
	Progress   []ProgressLog `json:"progress,omitempty"`
}

// Empty reports whether no domain data was hydrated.
func (s Snapshot) Empty() bool {
	return s.Summary == "" && len(s.Goals) == 0 && len(s.Milestones) == 0 &&
		len(s.Habits) == 0 && len(s.Progress) == 0
}

func (s Snapshot) clone() Snapshot {
	s.Goals = slices.Clone(s.Goals)
	s.Milestones = slices.Clone(s.Milestones)
	s.Habits = slices.Clone(s.Habits)
	s.Progress = slices.Clone(s.Progress)
	return s
}

// SearchResult is one web search hit.
type SearchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}
