package model

import "time"

type TeamID string

// Team groups members and their weekly updates.
type Team struct {
	ID        TeamID    `firestore:"-" json:"id" yaml:"id"`
	Name      string    `firestore:"name" json:"name" yaml:"name"`
	CreatedAt time.Time `firestore:"createdAt,serverTimestamp" json:"createdAt" yaml:"createdAt"`
}

// WeeklyInput is one member's free-text update for a week. It is stored under
// teams/{teamId}/weeklyInputs.
type WeeklyInput struct {
	ID         string    `firestore:"-" json:"id" yaml:"id"`
	MemberName string    `firestore:"memberName" json:"memberName" yaml:"memberName"`
	Update     string    `firestore:"update" json:"update" yaml:"update"`
	WeekKey    string    `firestore:"weekKey" json:"weekKey" yaml:"weekKey"`
	CreatedAt  time.Time `firestore:"createdAt,serverTimestamp" json:"createdAt" yaml:"createdAt"`
}

// Summary is a generated synthesis of one week of updates. Several summaries
// may exist for the same week.
type Summary struct {
	ID        string    `firestore:"-" json:"id" yaml:"id"`
	WeekKey   string    `firestore:"weekKey" json:"weekKey" yaml:"weekKey"`
	Content   string    `firestore:"content" json:"content" yaml:"content"`
	CreatedAt time.Time `firestore:"createdAt,serverTimestamp" json:"createdAt" yaml:"createdAt"`
}

// Update is the part of a WeeklyInput that goes into a summary prompt.
type Update struct {
	MemberName string `json:"memberName"`
	Update     string `json:"update"`
}

// Updates converts weekly inputs to prompt updates keeping their order.
func Updates(inputs []*WeeklyInput) []Update {
	updates := make([]Update, 0, len(inputs))
	for _, in := range inputs {
		updates = append(updates, Update{MemberName: in.MemberName, Update: in.Update})
	}
	return updates
}
