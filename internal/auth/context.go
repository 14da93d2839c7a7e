package auth

import (
	"context"
	"errors"
)

// ErrUnauthenticated is returned when an operation needs the current user and none is set.
var ErrUnauthenticated = errors.New("auth: no authenticated user")

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxUserType
)

func WithIdentity(ctx context.Context, userID string, userType UserType) context.Context {
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxUserType, userType)
	return ctx
}

func UserID(ctx context.Context) (string, error) {
	v := ctx.Value(ctxUserID)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", ErrUnauthenticated
}

func Type(ctx context.Context) (UserType, error) {
	v := ctx.Value(ctxUserType)
	if t, ok := v.(UserType); ok && t != "" {
		return t, nil
	}
	return "", ErrUnauthenticated
}
