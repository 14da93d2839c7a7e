package auth

import (
	"context"
	"errors"
	"testing"
)

func TestUserID_MissingIsUnauthenticated(t *testing.T) {
	if _, err := UserID(context.Background()); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if _, err := Type(context.Background()); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestWithIdentity_RoundTrip(t *testing.T) {
	ctx := WithIdentity(context.Background(), "u-1", UserTypeCustomer)
	uid, err := UserID(ctx)
	if err != nil || uid != "u-1" {
		t.Fatalf("unexpected user id %q err=%v", uid, err)
	}
	typ, err := Type(ctx)
	if err != nil || typ != UserTypeCustomer {
		t.Fatalf("unexpected type %q err=%v", typ, err)
	}
}
