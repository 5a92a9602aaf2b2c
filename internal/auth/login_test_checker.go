package auth

import "context"

type LoginTestChecker struct {
	// token to user id
	LoggedSessions map[string]int
}

func NewLoginTestChecker() *LoginTestChecker {
	return &LoginTestChecker{
		map[string]int{},
	}
}

func (c *LoginTestChecker) LoggedUserId(_ context.Context, token string) (int, error) {
	userId, ok := c.LoggedSessions[token]
	if !ok {
		return 0, ErrNotLoggedIn
	}
	return userId, nil
}
