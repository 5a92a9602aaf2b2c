package notes

import (
	"time"
	"unicode/utf8"
)

const (
	TitleMinLen   = 1
	TitleMaxLen   = 100
	ContentMinLen = 6
	ContentMaxLen = 500
)

type Note struct {
	Id        int        `json:"id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	CreatedBy int        `json:"created_by"`
	UpdatedBy int        `json:"updated_by"`
	DeletedBy *int       `json:"deleted_by,omitempty"`
}

func (n *Note) Deleted() bool {
	return n.DeletedAt != nil
}

func validateTitleAndContent(title, content string) error {
	// character counts, not byte counts, so multibyte titles are not penalized
	if titleLen := utf8.RuneCountInString(title); titleLen < TitleMinLen || titleLen > TitleMaxLen {
		return &ValidationError{Field: "title", Reason: "must be between 1 and 100 characters"}
	}
	if contentLen := utf8.RuneCountInString(content); contentLen < ContentMinLen || contentLen > ContentMaxLen {
		return &ValidationError{Field: "content", Reason: "must be between 6 and 500 characters"}
	}
	return nil
}
