package stats

import (
	"context"
	"testing"
)

func TestHandleMutationAppliesEvent(t *testing.T) {
	snaps := newFakeSnapshots()
	seed(snaps, "t1", 0, 0)
	svc := NewService(testConfig(), newFakeCorpus(), snaps)
	handle := HandleMutation(svc)

	payload := []byte(`{"tenant_id":"t1","source_id":"s","chunk_delta_count":3,"term_length_delta":90,"operation":"ADD"}`)
	if err := handle(context.Background(), []byte("t1"), payload); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	snap, ok := svc.Peek("t1")
	if !ok {
		t.Fatal("tenant missing after consumed event")
	}
	if snap.TotalChunkCount != 3 || snap.TotalTermLength != 90 {
		t.Errorf("expected (3,90), got (%d,%d)", snap.TotalChunkCount, snap.TotalTermLength)
	}
}

func TestHandleMutationSkipsPoisonMessages(t *testing.T) {
	svc := NewService(testConfig(), newFakeCorpus(), newFakeSnapshots())
	handle := HandleMutation(svc)

	// Undecodable and invalid payloads must not error, or the partition
	// would never advance.
	if err := handle(context.Background(), nil, []byte(`{{not json`)); err != nil {
		t.Errorf("poison message returned error: %v", err)
	}
	if err := handle(context.Background(), nil, []byte(`{"tenant_id":"","operation":"ADD"}`)); err != nil {
		t.Errorf("invalid event returned error: %v", err)
	}
}
