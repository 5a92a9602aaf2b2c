package notes

import (
	"context"
	"sort"
	"sync"
	"time"
)

type repoMock struct {
	mutex  sync.Mutex
	notes  map[int]*Note
	nextId int
}

func NewMockNotesRepo() *repoMock {
	return &repoMock{
		notes:  make(map[int]*Note),
		nextId: 1,
	}
}

func (r *repoMock) Add(_ context.Context, ownerId int, title, content string) (*Note, error) {
	if err := validateTitleAndContent(title, content); err != nil {
		return nil, err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	now := time.Now()
	note := &Note{
		Id:        r.nextId,
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: ownerId,
		UpdatedBy: ownerId,
	}
	r.nextId++
	r.notes[note.Id] = note

	noteCopy := *note
	return &noteCopy, nil
}

func (r *repoMock) GetOne(_ context.Context, ownerId, noteId int) (*Note, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	note, err := r.visibleNote(ownerId, noteId)
	if err != nil {
		return nil, err
	}

	noteCopy := *note
	return &noteCopy, nil
}

func (r *repoMock) List(_ context.Context, params ListParams) ([]Note, int, error) {
	if params.Page < 1 {
		return nil, 0, &ValidationError{Field: "page", Reason: "must be greater than zero"}
	}
	if params.Size < 1 {
		return nil, 0, &ValidationError{Field: "size", Reason: "must be greater than zero"}
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	var matched []Note
	for _, n := range r.notes {
		if params.FilterByOwner && n.CreatedBy != params.OwnerId {
			continue
		}
		if !params.IncludeDeleted && n.Deleted() {
			continue
		}
		matched = append(matched, *n)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Id < matched[j].Id
	})

	total := len(matched)
	from := (params.Page - 1) * params.Size
	if from >= total {
		return []Note{}, total, nil
	}
	to := from + params.Size
	if to > total {
		to = total
	}
	return matched[from:to], total, nil
}

func (r *repoMock) Update(_ context.Context, ownerId, noteId int, title, content string) (*Note, error) {
	if err := validateTitleAndContent(title, content); err != nil {
		return nil, err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	note, err := r.visibleNote(ownerId, noteId)
	if err != nil {
		return nil, err
	}

	note.Title = title
	note.Content = content
	note.UpdatedAt = time.Now()
	note.UpdatedBy = ownerId

	noteCopy := *note
	return &noteCopy, nil
}

func (r *repoMock) SoftDelete(_ context.Context, ownerId, noteId int) (*Note, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	note, err := r.visibleNote(ownerId, noteId)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	note.DeletedAt = &now
	note.DeletedBy = &ownerId

	noteCopy := *note
	return &noteCopy, nil
}

// visibleNote mirrors the fused predicate of the postgres repo: a note
// that does not exist, belongs to another user, or is soft-deleted is
// reported as not found in exactly the same way. Callers must hold the mutex.
func (r *repoMock) visibleNote(ownerId, noteId int) (*Note, error) {
	note, ok := r.notes[noteId]
	if !ok || note.CreatedBy != ownerId || note.Deleted() {
		return nil, ErrNoteNotFound
	}
	return note, nil
}
