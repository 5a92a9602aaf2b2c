package auth

import "context"

type ctxKey string

const userIdCtxKey ctxKey = "userId"

// ContextWithUserId is used by the auth middleware to stamp the request
// context with the id of the logged-in user making the request.
func ContextWithUserId(ctx context.Context, userId int) context.Context {
	return context.WithValue(ctx, userIdCtxKey, userId)
}

func UserIdFromContext(ctx context.Context) (int, bool) {
	userId, ok := ctx.Value(userIdCtxKey).(int)
	return userId, ok
}
