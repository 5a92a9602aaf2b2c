package auth

import (
	"context"
	"sync"
	"time"
)

type UsersRepoMock struct {
	mutex  sync.Mutex
	users  map[string]*User
	nextId int
}

func NewMockUsersRepo() *UsersRepoMock {
	return &UsersRepoMock{
		users:  make(map[string]*User),
		nextId: 1,
	}
}

func (r *UsersRepoMock) Create(_ context.Context, username, passwordHash string) (*User, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.users[username]; ok {
		return nil, ErrUsernameTaken
	}

	user := &User{
		Id:           r.nextId,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	r.nextId++
	r.users[username] = user

	userCopy := *user
	return &userCopy, nil
}

func (r *UsersRepoMock) GetByUsername(_ context.Context, username string) (*User, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	user, ok := r.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}

	userCopy := *user
	return &userCopy, nil
}
