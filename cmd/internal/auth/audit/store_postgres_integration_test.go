package audit

import (
	"context"
	"testing"
	"time"

	"warden/cmd/identity/ids"
	"warden/cmd/internal/dbschema"
)

func TestPostgresStore_AppendQuery(t *testing.T) {
	t.Parallel()
	pool := dbschema.OpenTestPool(t)
	s := NewPostgresStore(pool)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	owner := "it-" + ids.NewUUID()
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM warden.audit_events WHERE owner_id = $1`, owner)
	})

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i, outcome := range []string{OutcomeLoginSuccess, Failed(OutcomeRefreshFailed, "reused"), "100%_literal success"} {
		at := base.Add(time.Duration(i) * time.Second)
		if err := s.Append(ctx, Event{
			ID:         ids.MustULID(at),
			OwnerID:    ownerPtr(owner),
			Method:     "PUT",
			Endpoint:   "/tokens",
			Outcome:    outcome,
			OccurredAt: at,
		}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	page, err := s.Query(ctx, Filter{OwnerID: owner, OutcomePattern: "REUSED"}, PageRequest{Size: 10})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if page.TotalItems != 1 || page.Items[0].Outcome != Failed(OutcomeRefreshFailed, "reused") {
		t.Fatalf("unexpected page: %+v", page)
	}

	// LIKE metacharacters in the pattern match literally.
	n, err := s.Count(ctx, Filter{OwnerID: owner, OutcomePattern: "0%_l"})
	if err != nil || n != 1 {
		t.Fatalf("Count literal: n=%d err=%v", n, err)
	}

	all, err := s.Query(ctx, Filter{OwnerID: owner}, PageRequest{Page: 0, Size: 2})
	if err != nil {
		t.Fatalf("Query all: %v", err)
	}
	if all.TotalItems != 3 || len(all.Items) != 2 || all.TotalPages != 2 {
		t.Fatalf("unexpected pagination: %+v", all)
	}
	if !all.Items[0].OccurredAt.After(all.Items[1].OccurredAt) {
		t.Fatalf("expected newest first")
	}
}
