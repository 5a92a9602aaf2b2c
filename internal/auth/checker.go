package auth

import (
	"context"
	"errors"
)

// TokenHeader carries the session token on authenticated requests.
const TokenHeader = "X-NOTESBOX-TOKEN"

var _ Checker = (*LoginChecker)(nil)
var _ Checker = (*LoginTestChecker)(nil)

var ErrNotLoggedIn = errors.New("not logged in")

// Checker resolves a session token to the id of the user owning the
// session. Unknown and expired tokens get ErrNotLoggedIn.
type Checker interface {
	LoggedUserId(ctx context.Context, token string) (int, error)
}
