package notes

import (
	"context"
	"fmt"
)

type notesRepo interface {
	Add(ctx context.Context, ownerId int, title, content string) (*Note, error)
	GetOne(ctx context.Context, ownerId, noteId int) (*Note, error)
	List(ctx context.Context, params ListParams) (_ []Note, total int, err error)
	Update(ctx context.Context, ownerId, noteId int, title, content string) (*Note, error)
	SoftDelete(ctx context.Context, ownerId, noteId int) (*Note, error)
}

type PaginationMeta struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Size       int `json:"size"`
	TotalPages int `json:"total_pages"`
}

// Service sits between the HTTP handler and the repo: it validates input at
// the boundary, computes pagination metadata, and passes repo errors through
// untouched so the handler can map them 1:1 to status codes.
type Service struct {
	repo notesRepo
}

func NewService(repo notesRepo) *Service {
	return &Service{
		repo: repo,
	}
}

func (s *Service) CreateNote(ctx context.Context, callerId int, title, content string) (*Note, error) {
	if err := validateTitleAndContent(title, content); err != nil {
		return nil, err
	}
	return s.repo.Add(ctx, callerId, title, content)
}

func (s *Service) GetNote(ctx context.Context, callerId, noteId int) (*Note, error) {
	return s.repo.GetOne(ctx, callerId, noteId)
}

func (s *Service) ListNotes(
	ctx context.Context,
	callerId, page, size int,
	filterByOwner, includeDeleted bool,
) ([]Note, PaginationMeta, error) {
	if page < 1 {
		return nil, PaginationMeta{}, &ValidationError{Field: "page", Reason: "must be greater than 0"}
	}
	if size < 1 {
		return nil, PaginationMeta{}, &ValidationError{Field: "size", Reason: "must be greater than 0"}
	}

	notes, total, err := s.repo.List(ctx, ListParams{
		OwnerId:        callerId,
		Page:           page,
		Size:           size,
		FilterByOwner:  filterByOwner,
		IncludeDeleted: includeDeleted,
	})
	if err != nil {
		return nil, PaginationMeta{}, fmt.Errorf("list notes: %w", err)
	}

	return notes, PaginationMeta{
		Total:      total,
		Page:       page,
		Size:       size,
		TotalPages: (total + size - 1) / size,
	}, nil
}

func (s *Service) UpdateNote(ctx context.Context, callerId, noteId int, title, content string) (*Note, error) {
	if err := validateTitleAndContent(title, content); err != nil {
		return nil, err
	}
	return s.repo.Update(ctx, callerId, noteId, title, content)
}

func (s *Service) DeleteNote(ctx context.Context, callerId, noteId int) (*Note, error) {
	return s.repo.SoftDelete(ctx, callerId, noteId)
}
