package domain

import "time"

// Review is a single user's rating of a title.
type Review struct {
	ID          string
	UserID      string
	TitleID     string
	Rating      int
	Description *string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ReviewFilter narrows a title's review list.
type ReviewFilter struct {
	UserID *string
	Active *bool
}

// Matches reports whether the review passes every set criterion.
func (f ReviewFilter) Matches(r Review) bool {
	if f.UserID != nil && r.UserID != *f.UserID {
		return false
	}
	if f.Active != nil && r.Active != *f.Active {
		return false
	}
	return true
}
