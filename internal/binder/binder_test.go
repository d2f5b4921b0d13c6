package binder

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"zigbee-descriptors/internal/devicedb"
	"zigbee-descriptors/internal/store"
	"zigbee-descriptors/internal/zcl"
	"zigbee-descriptors/internal/zcl/clusters"
)

// memStore is a minimal in-memory session store for binder tests.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]*store.Session
	nextID   int
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]*store.Session)}
}

func (m *memStore) CreateSession(s *store.Session) (*store.Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[s.IEEEAddress]; ok {
		return existing, false, nil
	}
	m.nextID++
	s.ID = string(rune('a' + m.nextID))
	m.sessions[s.IEEEAddress] = s
	return s, true, nil
}

func (m *memStore) GetSession(ieee string) (*store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[ieee]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s, nil
}

func (m *memStore) DeleteSession(ieee string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[ieee]; !ok {
		return store.ErrNotFound
	}
	delete(m.sessions, ieee)
	return nil
}

func (m *memStore) ListSessions() ([]*store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := make([]*store.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	return list, nil
}

func (m *memStore) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

const testIEEE = "0x00158d00012a3b4c"

func newTestBinder(t *testing.T) (*Binder, *memStore, *Metrics) {
	t.Helper()
	logger := testLogger()
	registry := zcl.NewRegistry(logger)
	clusters.RegisterStandard(registry)
	db, err := devicedb.LoadBuiltin(registry, logger)
	if err != nil {
		t.Fatal(err)
	}
	ms := newMemStore()
	metrics := NewMetrics()
	return New(db, ms, NewEventBus(logger), metrics, logger), ms, metrics
}

func TestParseIEEE(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"0x00158d00012a3b4c", "00158D00012A3B4C", false},
		{"00158D00012A3B4C", "00158D00012A3B4C", false},
		{" 0X00158D00012A3B4C ", "00158D00012A3B4C", false},
		{"00158D00", "", true},
		{"00158D00012A3B4G", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseIEEE(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseIEEE(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseIEEE(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestJoinCreatesSession(t *testing.T) {
	b, ms, metrics := newTestBinder(t)

	var bound []*store.Session
	b.Events().On(EventDeviceBound, func(e Event) {
		bound = append(bound, e.Data.(*store.Session))
	})

	sess, err := b.Join(testIEEE, "aeris-z")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if sess.IEEEAddress != "00158D00012A3B4C" {
		t.Errorf("ieee = %q", sess.IEEEAddress)
	}
	if sess.Model != "aeris-z" || sess.Vendor != "ESPRESSIF" {
		t.Errorf("model/vendor = %q/%q", sess.Model, sess.Vendor)
	}
	if len(sess.Properties) != 12 {
		t.Errorf("properties = %d, want 12", len(sess.Properties))
	}
	if len(bound) != 1 || bound[0] != sess {
		t.Errorf("bound events = %d", len(bound))
	}
	if len(ms.sessions) != 1 {
		t.Errorf("stored sessions = %d, want 1", len(ms.sessions))
	}
	if got := testutil.ToFloat64(metrics.binds.WithLabelValues(resultCreated)); got != 1 {
		t.Errorf("binds{created} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.sessions); got != 1 {
		t.Errorf("sessions = %v, want 1", got)
	}
}

func TestJoinExistingSessionUntouched(t *testing.T) {
	b, _, metrics := newTestBinder(t)

	first, err := b.Join(testIEEE, "aeris-z")
	if err != nil {
		t.Fatal(err)
	}

	events := 0
	b.Events().OnAll(func(Event) { events++ })

	second, err := b.Join(testIEEE, "aeris-z-lite")
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID || second.Model != "aeris-z" {
		t.Errorf("second join = %s/%s, want %s/aeris-z", second.ID, second.Model, first.ID)
	}
	if events != 0 {
		t.Errorf("events on existing join = %d, want 0", events)
	}
	if got := testutil.ToFloat64(metrics.binds.WithLabelValues(resultExisting)); got != 1 {
		t.Errorf("binds{existing} = %v, want 1", got)
	}
}

func TestJoinBoundDeviceIgnoresReportedModel(t *testing.T) {
	b, _, metrics := newTestBinder(t)

	first, err := b.Join(testIEEE, "aeris-z")
	if err != nil {
		t.Fatal(err)
	}

	var types []string
	b.Events().OnAll(func(e Event) { types = append(types, e.Type) })

	again, err := b.Join(testIEEE, "unknown-model")
	if err != nil {
		t.Fatalf("rejoin with unknown model: %v", err)
	}
	if again.ID != first.ID {
		t.Errorf("session = %s, want %s", again.ID, first.ID)
	}
	if len(types) != 0 {
		t.Errorf("events on rejoin = %v, want none", types)
	}
	if got := testutil.ToFloat64(metrics.binds.WithLabelValues(resultUnknownModel)); got != 0 {
		t.Errorf("binds{unknown_model} = %v, want 0", got)
	}
}

func TestJoinConcurrentAtMostOnce(t *testing.T) {
	b, ms, _ := newTestBinder(t)

	var (
		mu    sync.Mutex
		bound int
		wg    sync.WaitGroup
	)
	b.Events().On(EventDeviceBound, func(Event) {
		mu.Lock()
		bound++
		mu.Unlock()
	})
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := b.Join(testIEEE, "aeris-z"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if bound != 1 {
		t.Errorf("bound events = %d, want 1", bound)
	}
	if len(ms.sessions) != 1 {
		t.Errorf("sessions = %d, want 1", len(ms.sessions))
	}
}

func TestJoinUnknownModel(t *testing.T) {
	b, ms, metrics := newTestBinder(t)

	var failures []BindFailure
	b.Events().On(EventBindFailed, func(e Event) {
		failures = append(failures, e.Data.(BindFailure))
	})

	_, err := b.Join(testIEEE, "lumi.weather")
	if !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("err = %v, want ErrUnknownModel", err)
	}
	if len(ms.sessions) != 0 {
		t.Errorf("sessions = %d, want 0", len(ms.sessions))
	}
	if len(failures) != 1 || failures[0].Reason != resultUnknownModel {
		t.Errorf("failures = %+v", failures)
	}
	if got := testutil.ToFloat64(metrics.binds.WithLabelValues(resultUnknownModel)); got != 1 {
		t.Errorf("binds{unknown_model} = %v, want 1", got)
	}
}

func TestJoinInvalidIEEE(t *testing.T) {
	b, _, _ := newTestBinder(t)
	if _, err := b.Join("nope", "aeris-z"); !errors.Is(err, ErrInvalidIEEE) {
		t.Errorf("err = %v, want ErrInvalidIEEE", err)
	}
}

func TestLeave(t *testing.T) {
	b, ms, metrics := newTestBinder(t)
	if _, err := b.Join(testIEEE, "aeris-z"); err != nil {
		t.Fatal(err)
	}

	var unbound []*store.Session
	b.Events().On(EventDeviceUnbound, func(e Event) {
		unbound = append(unbound, e.Data.(*store.Session))
	})

	if err := b.Leave(testIEEE); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if len(ms.sessions) != 0 {
		t.Errorf("sessions = %d, want 0", len(ms.sessions))
	}
	if len(unbound) != 1 || unbound[0].Model != "aeris-z" {
		t.Errorf("unbound events = %+v", unbound)
	}
	if got := testutil.ToFloat64(metrics.sessions); got != 0 {
		t.Errorf("sessions gauge = %v, want 0", got)
	}
	if err := b.Leave(testIEEE); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second leave: err = %v, want ErrNotFound", err)
	}
}

func TestRebind(t *testing.T) {
	b, _, _ := newTestBinder(t)
	first, err := b.Join(testIEEE, "aeris-z")
	if err != nil {
		t.Fatal(err)
	}

	var types []string
	b.Events().OnAll(func(e Event) { types = append(types, e.Type) })

	second, err := b.Rebind(testIEEE)
	if err != nil {
		t.Fatalf("Rebind: %v", err)
	}
	if second.ID == first.ID {
		t.Error("rebind kept the old session id")
	}
	if len(second.Properties) != len(first.Properties) {
		t.Errorf("properties = %d, want %d", len(second.Properties), len(first.Properties))
	}
	for i := range first.Properties {
		if !first.Properties[i].Equal(second.Properties[i]) {
			t.Errorf("property %d changed on rebind", i)
		}
	}
	if len(types) != 2 || types[0] != EventDeviceUnbound || types[1] != EventDeviceBound {
		t.Errorf("events = %v, want [device_unbound device_bound]", types)
	}

	if _, err := b.Rebind("FFFFFFFFFFFFFFFF"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("rebind unbound device: err = %v, want ErrNotFound", err)
	}
}

func TestRebindKeepsSessionOnFailure(t *testing.T) {
	b, ms, metrics := newTestBinder(t)
	if _, err := b.Join(testIEEE, "aeris-z"); err != nil {
		t.Fatal(err)
	}

	// The stored model no longer has a definition.
	ms.sessions["00158D00012A3B4C"].Model = "retired-model"
	if _, err := b.Rebind(testIEEE); !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("err = %v, want ErrUnknownModel", err)
	}
	if _, ok := ms.sessions["00158D00012A3B4C"]; !ok {
		t.Error("session removed after failed rebind")
	}
	if got := testutil.ToFloat64(metrics.sessions); got != 1 {
		t.Errorf("sessions gauge = %v, want 1", got)
	}
}

func TestNewCountsExistingSessions(t *testing.T) {
	logger := testLogger()
	ms := newMemStore()
	ms.sessions["A"] = &store.Session{IEEEAddress: "A"}
	ms.sessions["B"] = &store.Session{IEEEAddress: "B"}
	metrics := NewMetrics()
	New(devicedb.New(zcl.NewRegistry(logger), logger), ms, NewEventBus(logger), metrics, logger)
	if got := testutil.ToFloat64(metrics.sessions); got != 2 {
		t.Errorf("sessions gauge = %v, want 2", got)
	}
}

func TestEventBusPanicRecovery(t *testing.T) {
	eb := NewEventBus(testLogger())
	called := false
	eb.On(EventDeviceBound, func(Event) { panic("boom") })
	eb.OnAll(func(Event) { called = true })
	eb.Emit(Event{Type: EventDeviceBound})
	if !called {
		t.Error("handler after panicking handler not called")
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	eb := NewEventBus(testLogger())
	n := 0
	off := eb.On(EventDeviceBound, func(Event) { n++ })
	eb.Emit(Event{Type: EventDeviceBound})
	off()
	eb.Emit(Event{Type: EventDeviceBound})
	eb.Emit(Event{Type: EventDeviceUnbound})
	if n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestEventBusOrder(t *testing.T) {
	eb := NewEventBus(testLogger())
	var got []string
	eb.OnAll(func(Event) { got = append(got, "all") })
	eb.On(EventDeviceBound, func(Event) { got = append(got, "bound") })
	off := eb.OnAll(func(Event) { got = append(got, "removed") })
	eb.On(EventBindFailed, func(Event) { got = append(got, "failed") })
	off()

	eb.Emit(Event{Type: EventDeviceBound})
	if strings.Join(got, ",") != "all,bound" {
		t.Errorf("delivery order = %v", got)
	}
}
