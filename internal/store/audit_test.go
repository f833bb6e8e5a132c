package store

import (
	"context"
	"testing"
	"time"

	"github.com/router-for-me/ErrorMonitorBusiness/internal/models"
)

func TestAuditStoreRecordAndList(t *testing.T) {
	conn := openTestDB(t)
	audits := NewAuditStore(conn)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	audits.nowFn = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	ctx := context.Background()

	audits.Record(ctx, AuditEntry{Username: "mallory", Action: models.AuditLoginFailed, EntityType: models.AuditEntityUser, IPAddress: "10.0.0.9"})
	audits.Record(ctx, AuditEntry{UserID: 1, Username: "alice", Action: "login", EntityType: models.AuditEntityUser, EntityID: 1})
	audits.Record(ctx, AuditEntry{UserID: 1, Username: "alice", Action: models.AuditUserDisabled, EntityType: models.AuditEntityUser, EntityID: 2, OldValues: "active", NewValues: "disabled"})
	audits.Record(ctx, AuditEntry{UserID: 1, Action: "  "})

	rows, total, err := audits.List(ctx, AuditFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 3 || len(rows) != 3 {
		t.Fatalf("expected 3 audit rows, got total=%d len=%d", total, len(rows))
	}
	if rows[0].Action != models.AuditUserDisabled || rows[0].EntityID != "2" {
		t.Fatalf("expected newest row first, got %+v", rows[0])
	}
	if rows[1].Action != models.AuditLogin {
		t.Fatalf("expected action upper-cased, got %q", rows[1].Action)
	}
	if rows[2].UserID != nil || rows[2].Username != "mallory" {
		t.Fatalf("expected anonymous failure row, got %+v", rows[2])
	}

	rows, total, err = audits.List(ctx, AuditFilter{UserID: 1, Action: "user_disabled"})
	if err != nil {
		t.Fatalf("List filtered: %v", err)
	}
	if total != 1 || rows[0].NewValues != "disabled" {
		t.Fatalf("unexpected filtered rows total=%d rows=%+v", total, rows)
	}

	rows, _, err = audits.List(ctx, AuditFilter{Since: base.Add(2 * time.Second)})
	if err != nil {
		t.Fatalf("List since: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows since cutoff, got %d", len(rows))
	}
}

func TestAuditStoreNilIsNoop(t *testing.T) {
	var audits *AuditStore
	audits.Record(context.Background(), AuditEntry{Action: models.AuditLogin})
	if _, _, err := audits.List(context.Background(), AuditFilter{}); err != ErrNotInitialized {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}
