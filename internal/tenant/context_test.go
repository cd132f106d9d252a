package tenant

import (
	"context"
	"testing"
)

func TestFromContext_RoundTrip(t *testing.T) {
	tc := &Context{OrganizationID: 10, Plan: "pro"}
	ctx := NewContext(context.Background(), tc)

	got := FromContext(ctx)
	if got == nil {
		t.Fatal("FromContext() = nil")
	}
	if got.OrganizationID != 10 || got.Plan != "pro" {
		t.Errorf("got %+v, want OrganizationID=10 Plan=pro", got)
	}
}

func TestFromContext_Unresolved(t *testing.T) {
	if got := FromContext(context.Background()); got != nil {
		t.Errorf("FromContext(empty) = %+v, want nil", got)
	}
}
