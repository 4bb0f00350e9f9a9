package engine

import (
	"testing"
	"time"
)

func TestRegistryGetAndActive(t *testing.T) {
	r := NewRegistry(time.Minute)

	r.Update(Progress{SyncID: "a", APIKeyID: "k1", Phase: PhaseDiscovery})
	r.Update(Progress{SyncID: "b", APIKeyID: "k2", Phase: PhasePopulate})

	got, ok := r.Get("a")
	if !ok || got.Phase != PhaseDiscovery {
		t.Fatalf("Get(a) = %+v, %v", got, ok)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("Update did not stamp UpdatedAt")
	}

	if active := r.Active(); len(active) != 2 {
		t.Errorf("Active() = %d entries, want 2", len(active))
	}

	// Finished runs drop out of Active but stay queryable until the TTL.
	r.Update(Progress{SyncID: "a", APIKeyID: "k1", Phase: PhaseComplete})
	if active := r.Active(); len(active) != 1 || active[0].SyncID != "b" {
		t.Errorf("Active() after completion = %+v", active)
	}
	if _, ok := r.Get("a"); !ok {
		t.Error("completed run evicted before TTL")
	}
}

func TestRegistryEvictsAfterTTL(t *testing.T) {
	r := NewRegistry(10 * time.Millisecond)

	r.Update(Progress{SyncID: "done", Phase: PhaseError})
	r.Update(Progress{SyncID: "live", Phase: PhasePopulate})

	time.Sleep(20 * time.Millisecond)
	// Any write sweeps expired finished entries.
	r.Update(Progress{SyncID: "live", Phase: PhasePopulate, TasksCompleted: 1})

	if _, ok := r.Get("done"); ok {
		t.Error("finished entry survived past TTL")
	}
	if _, ok := r.Get("live"); !ok {
		t.Error("unfinished entry was evicted")
	}
}
