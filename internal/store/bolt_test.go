package store

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"zigbee-descriptors/internal/descriptor"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testSession(ieee string) *Session {
	return &Session{
		IEEEAddress: ieee,
		Model:       "aeris-z",
		Vendor:      "ESPRESSIF",
		Properties: []descriptor.ResolvedProperty{
			{Name: "temperature", Property: "temperature", Endpoint: "1", EndpointID: 1, Cluster: 0x0402,
				ClusterName: "msTemperatureMeasurement", Access: descriptor.AccessStateReport, Scale: 100,
				Reporting: &descriptor.Reporting{Min: 10, Max: 3600, Change: 100}},
		},
	}
}

func TestCreateAndGetSession(t *testing.T) {
	s := newTestStore(t)

	in := testSession("00158D00012A3B4C")
	got, created, err := s.CreateSession(in)
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Error("created = false, want true")
	}
	if got.ID == "" {
		t.Error("session id not assigned")
	}
	if got.BoundAt.IsZero() {
		t.Error("bound_at not set")
	}

	loaded, err := s.GetSession("0x00158d00012a3b4c")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.ID != got.ID {
		t.Errorf("id = %q, want %q", loaded.ID, got.ID)
	}
	if loaded.Model != "aeris-z" || loaded.Vendor != "ESPRESSIF" {
		t.Errorf("model/vendor = %q/%q", loaded.Model, loaded.Vendor)
	}
	if len(loaded.Properties) != 1 {
		t.Fatalf("properties = %d, want 1", len(loaded.Properties))
	}
	if !loaded.Properties[0].Equal(in.Properties[0]) {
		t.Errorf("property = %+v, want %+v", loaded.Properties[0], in.Properties[0])
	}
}

func TestCreateSessionAtMostOnce(t *testing.T) {
	s := newTestStore(t)

	first, created, err := s.CreateSession(testSession("00158D00012A3B4C"))
	if err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}

	second := testSession("00158D00012A3B4C")
	second.Model = "other"
	got, created, err := s.CreateSession(second)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("created = true for existing session")
	}
	if got.ID != first.ID || got.Model != "aeris-z" {
		t.Errorf("existing session = %+v, want id %s model aeris-z", got, first.ID)
	}
}

func TestCreateSessionConcurrent(t *testing.T) {
	s := newTestStore(t)

	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = make(map[string]int)
		created int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, ok, err := s.CreateSession(testSession("00124B0001ABCDEF"))
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[sess.ID]++
			if ok {
				created++
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Errorf("created = %d, want 1", created)
	}
	if len(ids) != 1 {
		t.Errorf("distinct session ids = %d, want 1", len(ids))
	}
}

func TestCreateSessionRequiresIEEE(t *testing.T) {
	s := newTestStore(t)
	if _, _, err := s.CreateSession(&Session{Model: "x"}); err == nil {
		t.Error("expected error for session without ieee")
	}
}

func TestDeleteSession(t *testing.T) {
	s := newTestStore(t)

	if _, _, err := s.CreateSession(testSession("00158D00012A3B4C")); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteSession("00158D00012A3B4C"); err != nil {
		t.Fatal(err)
	}

	_, err := s.GetSession("00158D00012A3B4C")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete: err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteSession("00158D00012A3B4C"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: err = %v, want ErrNotFound", err)
	}

	// A new session may be created after deletion.
	if _, created, err := s.CreateSession(testSession("00158D00012A3B4C")); err != nil || !created {
		t.Errorf("recreate: created=%v err=%v", created, err)
	}
}

func TestListSessions(t *testing.T) {
	s := newTestStore(t)

	for _, ieee := range []string{"00158D0000000002", "00158D0000000001", "00158D0000000003"} {
		sess := testSession(ieee)
		sess.BoundAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		if _, _, err := s.CreateSession(sess); err != nil {
			t.Fatal(err)
		}
	}

	list, err := s.ListSessions()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("sessions = %d, want 3", len(list))
	}
	if list[0].IEEEAddress != "00158D0000000001" {
		t.Errorf("first = %s, want 00158D0000000001", list[0].IEEEAddress)
	}
	if !list[0].BoundAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("bound_at = %v", list[0].BoundAt)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetSession("FFFFFFFFFFFFFFFF")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.CreateSession(testSession("00158D00012A3B4C")); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := s.GetSession("00158D00012A3B4C"); err != nil {
		t.Errorf("session lost after reopen: %v", err)
	}
}
