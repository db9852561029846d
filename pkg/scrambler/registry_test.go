package scrambler

import (
	"testing"

	"github.com/mscrnt/scramsim/pkg/bits"
	"github.com/mscrnt/scramsim/pkg/lfsr"
)

// identity is a test variant that leaves data untouched
type identity struct {
	name string
}

func (m *identity) Name() string                        { return m.name }
func (m *identity) Description() string                 { return "identity " + m.name }
func (m *identity) Scramble(data bits.Bits) bits.Bits   { return data.Clone() }
func (m *identity) Descramble(data bits.Bits) bits.Bits { return data.Clone() }

func identityFactory(name string) Factory {
	return func(_ *lfsr.Register) Scrambler {
		return &identity{name: name}
	}
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()

	// Test registering a variant
	err := registry.Register("test1", identityFactory("test1"))
	if err != nil {
		t.Fatalf("Failed to register variant: %v", err)
	}

	// Test registering duplicate variant
	err = registry.Register("test1", identityFactory("test1"))
	if err == nil {
		t.Fatal("Expected error when registering duplicate variant")
	}

	// Test registering nil factory
	err = registry.Register("nil", nil)
	if err == nil {
		t.Fatal("Expected error when registering nil factory")
	}

	// Test registering variant with empty name
	err = registry.Register("", identityFactory(""))
	if err == nil {
		t.Fatal("Expected error when registering variant with empty name")
	}

	// Test getting variant
	reg, err := lfsr.New(lfsr.DVB)
	if err != nil {
		t.Fatal(err)
	}
	got, err := registry.New("test1", reg)
	if err != nil {
		t.Fatalf("Failed to build variant: %v", err)
	}
	if got.Name() != "test1" {
		t.Errorf("Got wrong variant: expected test1, got %s", got.Name())
	}

	// Test building without a register
	if _, err := registry.New("test1", nil); err == nil {
		t.Fatal("Expected error when building with nil register")
	}

	// Test getting non-existent variant
	_, err = registry.Get("nonexistent")
	if err == nil {
		t.Fatal("Expected error when getting non-existent variant")
	}

	// Test listing variants
	_ = registry.Register("test3", identityFactory("test3"))

	list := registry.List()
	if len(list) != 2 {
		t.Errorf("Expected 2 variants, got %d", len(list))
	}

	// Verify list is sorted
	if list[0] != "test1" || list[1] != "test3" {
		t.Errorf("List not sorted correctly: %v", list)
	}

	// Test Clear
	registry.Clear()
	list = registry.List()
	if len(list) != 0 {
		t.Errorf("Expected 0 variants after Clear, got %d", len(list))
	}
}

func TestGlobalRegistry(t *testing.T) {
	list := List()
	if len(list) != 2 || list[0] != AdditiveName || list[1] != MultiplicativeName {
		t.Fatalf("Unexpected global list: %v", list)
	}

	reg, err := lfsr.New(lfsr.BLE)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range list {
		s, err := New(name, reg)
		if err != nil {
			t.Fatalf("Failed to build %s: %v", name, err)
		}
		if s.Name() != name {
			t.Errorf("Got wrong variant: expected %s, got %s", name, s.Name())
		}
	}

	if _, err := New("rot13", reg); err == nil {
		t.Fatal("Expected error for unknown variant")
	}
}

func TestInfos(t *testing.T) {
	registry := NewRegistry()
	_ = registry.Register("basic", identityFactory("basic"))

	infos := registry.Infos()
	if len(infos) != 1 {
		t.Fatalf("Expected 1 info, got %d", len(infos))
	}

	info := infos[0]
	if info.Name != "basic" {
		t.Errorf("Expected name 'basic', got %s", info.Name)
	}
	if info.Description != "identity basic" {
		t.Errorf("Expected description 'identity basic', got %s", info.Description)
	}

	if got := len(Infos()); got != 2 {
		t.Errorf("Expected 2 global infos, got %d", got)
	}
}
