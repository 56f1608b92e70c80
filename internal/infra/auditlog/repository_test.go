package auditlog

import (
	"context"
	"fmt"
	"testing"

	"github.com/HexlinkOfficial/hexlink-verifier/internal/domain"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRepository_AppendLogsAndLists(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	repo := New(zap.New(core), 0)

	event, err := repo.Append(context.Background(), domain.AuditEvent{
		EventType: domain.AuditEventProofIssued,
		RequestID: "req-1",
		Code:      200,
		Result:    domain.AuditResultSuccess,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if event.ID == "" || event.Seq != 1 || event.CreatedAt.IsZero() {
		t.Fatalf("expected id, seq and timestamp to be assigned: %+v", event)
	}
	if logs.Len() != 1 {
		t.Fatalf("expected one log entry, got %d", logs.Len())
	}
	fields := logs.All()[0].ContextMap()
	if fields["request_id"] != "req-1" || fields["event_type"] != "proof_issued" {
		t.Fatalf("unexpected log fields: %v", fields)
	}

	list, err := repo.ListByRequest(context.Background(), "req-1")
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one event, got %d (err=%v)", len(list), err)
	}
}

func TestRepository_Capacity(t *testing.T) {
	repo := New(nil, 2)
	for i := 0; i < 3; i++ {
		if _, err := repo.Append(context.Background(), domain.AuditEvent{
			EventType: domain.AuditEventProofRejected,
			RequestID: fmt.Sprintf("req-%d", i),
		}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if list, _ := repo.ListByRequest(context.Background(), "req-0"); len(list) != 0 {
		t.Fatal("expected oldest event to be evicted")
	}
	if list, _ := repo.ListByRequest(context.Background(), "req-2"); len(list) != 1 || list[0].Seq != 3 {
		t.Fatalf("unexpected newest event: %+v", list)
	}
}

func TestRepository_RequiresEventType(t *testing.T) {
	if _, err := New(nil, 0).Append(context.Background(), domain.AuditEvent{}); err == nil {
		t.Fatal("expected missing event type to fail")
	}
}
