package graph

import "testing"

func TestNewStoreSeedsRoot(t *testing.T) {
	s := NewStore(IdentityConfig{}, nil)
	root := s.GetRecord(RootID)
	if root == nil {
		t.Fatal("expected root record to exist")
	}
	if root["id"] != RootID {
		t.Fatalf("got id %v, want %v", root["id"], RootID)
	}
	if s.Version(RootID) != 1 {
		t.Fatalf("got version %d, want 1", s.Version(RootID))
	}
}

func TestPutRecordMergesFieldsAndReportsChange(t *testing.T) {
	s := NewStore(IdentityConfig{}, nil)

	changed := s.PutRecord("User:1", Record{"id": "1", "__typename": "User", "name": "Ada"})
	if !changed {
		t.Fatal("expected first write to report a change")
	}

	changed = s.PutRecord("User:1", Record{"name": "Ada"})
	if changed {
		t.Fatal("expected identical write to report no change")
	}

	changed = s.PutRecord("User:1", Record{"age": 30})
	if !changed {
		t.Fatal("expected new field to report a change")
	}

	rec := s.GetRecord("User:1")
	if rec["name"] != "Ada" || rec["age"] != 30 {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestPutRecordDeleteSentinelRemovesField(t *testing.T) {
	s := NewStore(IdentityConfig{}, nil)
	s.PutRecord("User:1", Record{"id": "1", "__typename": "User", "name": "Ada", "age": 30})

	changed := s.PutRecord("User:1", Record{"age": Delete{}})
	if !changed {
		t.Fatal("expected delete to report a change")
	}

	rec := s.GetRecord("User:1")
	if _, has := rec["age"]; has {
		t.Fatalf("expected age to be removed, got %v", rec)
	}
	if rec["name"] != "Ada" {
		t.Fatalf("expected unrelated field to survive, got %v", rec)
	}
}

func TestPutRecordStringifiesID(t *testing.T) {
	s := NewStore(IdentityConfig{}, nil)
	s.PutRecord("User:1", Record{"id": 1, "__typename": "User"})

	rec := s.GetRecord("User:1")
	if rec["id"] != "1" {
		t.Fatalf("got id %v (%T), want string \"1\"", rec["id"], rec["id"])
	}
}

func TestRemoveRecordDeletesAndIsIdempotent(t *testing.T) {
	s := NewStore(IdentityConfig{}, nil)
	s.PutRecord("User:1", Record{"id": "1", "__typename": "User"})

	s.RemoveRecord("User:1")
	if rec := s.GetRecord("User:1"); rec != nil {
		t.Fatalf("expected record to be gone, got %v", rec)
	}

	// second remove on an absent record must not panic or bump notify state.
	s.RemoveRecord("User:1")
}

func TestMaterializeRecordReflectsLiveWrites(t *testing.T) {
	s := NewStore(IdentityConfig{}, nil)
	s.PutRecord("User:1", Record{"id": "1", "__typename": "User", "name": "Ada"})

	proxy := s.MaterializeRecord("User:1")
	if got, _ := proxy.Get("name"); got != "Ada" {
		t.Fatalf("got %v, want Ada", got)
	}

	s.PutRecord("User:1", Record{"name": "Grace"})
	if got, _ := proxy.Get("name"); got != "Grace" {
		t.Fatalf("got %v after write, want Grace (proxy should reflect live state)", got)
	}

	s.RemoveRecord("User:1")
	if !proxy.Removed() {
		t.Fatal("expected proxy to report removed after RemoveRecord")
	}
}

func TestMaterializeRecordRepeatCallsReturnSameProxy(t *testing.T) {
	s := NewStore(IdentityConfig{}, nil)
	s.PutRecord("User:1", Record{"id": "1", "__typename": "User"})

	p1 := s.MaterializeRecord("User:1")
	p2 := s.MaterializeRecord("User:1")
	if p1 != p2 {
		t.Fatal("expected stable proxy identity across calls")
	}
}

func TestRegisterWatcherRunsImmediatelyAndOnDependencyChange(t *testing.T) {
	s := NewStore(IdentityConfig{}, nil)
	s.PutRecord("User:1", Record{"id": "1", "__typename": "User", "name": "Ada"})

	runs := 0
	var lastName interface{}
	id := s.RegisterWatcher(func() {
		runs++
		proxy := s.MaterializeRecord("User:1")
		lastName, _ = proxy.Get("name")
	})
	defer s.UnregisterWatcher(id)

	if runs != 1 {
		t.Fatalf("got %d initial runs, want 1", runs)
	}
	if lastName != "Ada" {
		t.Fatalf("got %v, want Ada", lastName)
	}

	s.PutRecord("User:1", Record{"name": "Grace"})
	if runs != 2 {
		t.Fatalf("got %d runs after dependency write, want 2", runs)
	}
	if lastName != "Grace" {
		t.Fatalf("got %v, want Grace", lastName)
	}
}

func TestRegisterWatcherDoesNotRerunOnUnrelatedWrite(t *testing.T) {
	s := NewStore(IdentityConfig{}, nil)
	s.PutRecord("User:1", Record{"id": "1", "__typename": "User"})
	s.PutRecord("User:2", Record{"id": "2", "__typename": "User"})

	runs := 0
	id := s.RegisterWatcher(func() {
		runs++
		s.MaterializeRecord("User:1").Get("name")
	})
	defer s.UnregisterWatcher(id)

	s.PutRecord("User:2", Record{"name": "Bob"})
	if runs != 1 {
		t.Fatalf("got %d runs, want 1 (watcher depends only on User:1)", runs)
	}
}

func TestUnregisterWatcherStopsFurtherRuns(t *testing.T) {
	s := NewStore(IdentityConfig{}, nil)
	s.PutRecord("User:1", Record{"id": "1", "__typename": "User"})

	runs := 0
	id := s.RegisterWatcher(func() {
		runs++
		s.MaterializeRecord("User:1").Get("name")
	})
	s.UnregisterWatcher(id)

	s.PutRecord("User:1", Record{"name": "Grace"})
	if runs != 1 {
		t.Fatalf("got %d runs after unregister, want 1", runs)
	}
}

func TestBatchCoalescesNotificationsToOneRunPerWatcher(t *testing.T) {
	s := NewStore(IdentityConfig{}, nil)
	s.PutRecord("User:1", Record{"id": "1", "__typename": "User", "name": "Ada"})

	runs := 0
	id := s.RegisterWatcher(func() {
		runs++
		s.MaterializeRecord("User:1").Get("name")
	})
	defer s.UnregisterWatcher(id)

	runs = 0
	s.Batch(func() {
		s.PutRecord("User:1", Record{"name": "Grace"})
		s.PutRecord("User:1", Record{"name": "Helen"})
	})

	if runs != 1 {
		t.Fatalf("got %d runs across batch, want 1", runs)
	}
	if got, _ := s.MaterializeRecord("User:1").Get("name"); got != "Helen" {
		t.Fatalf("got %v, want Helen", got)
	}
}

func TestRegisterTypeWatcherFiresOnNewRecordOfType(t *testing.T) {
	s := NewStore(IdentityConfig{}, nil)

	runs := 0
	id := s.RegisterTypeWatcher("User", func() { runs++ })
	defer s.UnregisterTypeWatcher("User", id)

	s.PutRecord("User:1", Record{"id": "1", "__typename": "User"})
	if runs != 1 {
		t.Fatalf("got %d runs after new User, want 1", runs)
	}

	// updating the same record is not a "new record of type" event.
	s.PutRecord("User:1", Record{"name": "Ada"})
	if runs != 1 {
		t.Fatalf("got %d runs after update, want still 1", runs)
	}

	s.PutRecord("User:2", Record{"id": "2", "__typename": "User"})
	if runs != 2 {
		t.Fatalf("got %d runs after second new User, want 2", runs)
	}
}

func TestRegisterTypeWatcherFiresOnRemove(t *testing.T) {
	s := NewStore(IdentityConfig{}, nil)
	s.PutRecord("User:1", Record{"id": "1", "__typename": "User"})

	runs := 0
	id := s.RegisterTypeWatcher("User", func() { runs++ })
	defer s.UnregisterTypeWatcher("User", id)

	s.RemoveRecord("User:1")
	if runs != 1 {
		t.Fatalf("got %d runs after remove, want 1", runs)
	}
}

func TestClearResetsToRootOnly(t *testing.T) {
	s := NewStore(IdentityConfig{}, nil)
	s.PutRecord("User:1", Record{"id": "1", "__typename": "User"})
	s.PutRecord("User:2", Record{"id": "2", "__typename": "User"})

	s.Clear()

	keys := s.Keys()
	if len(keys) != 1 || keys[0] != RootID {
		t.Fatalf("got keys %v, want only %v", keys, RootID)
	}
}

func TestKeysReturnsSortedIds(t *testing.T) {
	s := NewStore(IdentityConfig{}, nil)
	s.PutRecord("User:2", Record{"id": "2", "__typename": "User"})
	s.PutRecord("User:1", Record{"id": "1", "__typename": "User"})

	keys := s.Keys()
	want := []string{RootID, "User:1", "User:2"}
	if len(keys) != len(want) {
		t.Fatalf("got %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("got %v, want %v", keys, want)
		}
	}
}
