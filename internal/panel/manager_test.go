package panel

import "testing"

func TestManager_GetLookupDrop(t *testing.T) {
	m := NewManager(fakeBackend(t, nil), newMemPrefs(), DefaultConfig(), nil, testLogger())
	defer m.Close()

	if _, ok := m.Lookup("s1"); ok {
		t.Fatal("no state expected before Get")
	}
	a := m.Get("s1")
	if m.Get("s1") != a {
		t.Error("Get should return the same state for the same session")
	}
	m.Get("s2")
	if m.Len() != 2 {
		t.Errorf("Len = %d, want 2", m.Len())
	}

	m.Drop("s1")
	m.Drop("s1")
	if _, ok := m.Lookup("s1"); ok {
		t.Error("s1 should be dropped")
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1", m.Len())
	}
}
