package zcl

import (
	"log/slog"
	"os"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func tempCluster() ClusterDef {
	return ClusterDef{
		ID:   0x0402,
		Name: "Temperature Measurement",
		Key:  "msTemperatureMeasurement",
		Attributes: []AttributeDef{
			{ID: 0, Name: "MeasuredValue", Key: "measuredValue", Type: TypeInt16, Access: AccessRead | AccessReport},
		},
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register(tempCluster())

	got := r.Get(0x0402)
	if got == nil {
		t.Fatal("cluster not found")
	}
	if got.Key != "msTemperatureMeasurement" {
		t.Errorf("key = %q, want msTemperatureMeasurement", got.Key)
	}
	if len(got.Attributes) != 1 {
		t.Errorf("attrs = %d, want 1", len(got.Attributes))
	}

	// Mutating the copy must not leak into the registry.
	got.Attributes[0].Type = TypeUint8
	if again := r.Get(0x0402); again.Attributes[0].Type != TypeInt16 {
		t.Errorf("registry mutated through returned copy: type = 0x%02X", again.Attributes[0].Type)
	}
}

func TestRegistryMergeCustomAttribute(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register(tempCluster())

	// Manufacturer attribute declared alongside a device definition.
	r.Register(ClusterDef{
		ID: 0x0402,
		Attributes: []AttributeDef{
			{ID: 0xF00F, Name: "TemperatureOffset", Key: "temperatureOffset", Type: TypeInt16, Access: AccessRead | AccessWrite},
		},
	})

	got := r.Get(0x0402)
	if len(got.Attributes) != 2 {
		t.Fatalf("after merge: attrs = %d, want 2", len(got.Attributes))
	}
	if got.Key != "msTemperatureMeasurement" {
		t.Errorf("merge overwrote key: %q", got.Key)
	}
	if attr := got.FindAttribute(0xF00F); attr == nil || attr.Key != "temperatureOffset" {
		t.Errorf("merged attribute = %+v", attr)
	}
}

func TestRegistryLookupCluster(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register(tempCluster())

	tests := []struct {
		name string
		want bool
	}{
		{"msTemperatureMeasurement", true},
		{"MSTEMPERATUREMEASUREMENT", true},
		{"Temperature Measurement", true},
		{"0x0402", true},
		{"1026", true},
		{"msRelativeHumidity", false},
		{"", false},
		{"0x9999", false},
	}
	for _, tt := range tests {
		got := r.LookupCluster(tt.name)
		if (got != nil) != tt.want {
			t.Errorf("LookupCluster(%q) found = %v, want %v", tt.name, got != nil, tt.want)
		}
	}
}

func TestRegistryLookupClusterDuplicateNames(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register(ClusterDef{ID: 0xFC01, Name: "Sensor", Key: "acmeSensor"})
	r.Register(ClusterDef{ID: 0xFC00, Name: "acmeSensor", Key: "acmeLegacy"})
	r.Register(ClusterDef{ID: 0xFC03, Name: "Shared", Key: "shared"})
	r.Register(ClusterDef{ID: 0xFC02, Name: "Other", Key: "shared"})

	for i := 0; i < 50; i++ {
		// A key match beats a display name match on a lower ID.
		if c := r.LookupCluster("acmeSensor"); c == nil || c.ID != 0xFC01 {
			t.Fatalf("acmeSensor resolved to %+v, want 0xFC01", c)
		}
		// Equal keys resolve to the lowest ID.
		if c := r.LookupCluster("shared"); c == nil || c.ID != 0xFC02 {
			t.Fatalf("shared resolved to %+v, want 0xFC02", c)
		}
	}
}

func TestRegistryLookupAttribute(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register(tempCluster())

	c, a, err := r.LookupAttribute("msTemperatureMeasurement", "measuredValue")
	if err != nil {
		t.Fatal(err)
	}
	if c.ID != 0x0402 || a.ID != 0 || a.Type != TypeInt16 {
		t.Errorf("got cluster 0x%04X attr 0x%04X type 0x%02X", c.ID, a.ID, a.Type)
	}

	if _, _, err := r.LookupAttribute("msTemperatureMeasurement", "nope"); err == nil {
		t.Error("expected error for unknown attribute")
	}
	if _, _, err := r.LookupAttribute("nope", "measuredValue"); err == nil {
		t.Error("expected error for unknown cluster")
	}
}

func TestRegistryAllSorted(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register(ClusterDef{ID: 3, Name: "C"})
	r.Register(ClusterDef{ID: 1, Name: "A"})
	r.Register(ClusterDef{ID: 2, Name: "B"})

	all := r.All()
	if len(all) != 3 {
		t.Fatalf("got %d clusters, want 3", len(all))
	}
	for i, c := range all {
		if c.ID != uint16(i+1) {
			t.Errorf("all[%d].ID = %d, want %d", i, c.ID, i+1)
		}
	}
}
