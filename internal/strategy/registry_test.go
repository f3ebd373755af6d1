package strategy

import "testing"

func TestRegistry_Register_RejectsNilAndEmptyIDAndDuplicate(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(nil); err == nil {
		t.Fatal("expected error registering nil strategy")
	}

	if err := r.Register(NewSMACrossover()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register(NewSMACrossover()); err == nil {
		t.Fatal("expected error registering duplicate ID")
	}
}

func TestRegistry_GetAndList_ReturnRegisteredStrategies(t *testing.T) {
	r := NewRegistry()
	sma := NewSMACrossover()
	rsi := NewRSIMeanReversion()

	if err := r.Register(sma); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register(rsi); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := r.Get(sma.ID())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID() != sma.ID() {
		t.Fatalf("got ID %s, want %s", got.ID(), sma.ID())
	}

	ids := r.List()
	if len(ids) != 2 {
		t.Fatalf("expected 2 registered strategies, got %d", len(ids))
	}
}

func TestRegistry_Get_UnknownIDReturnsError(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("does_not_exist"); err == nil {
		t.Fatal("expected error for unknown strategy ID")
	}
}

func TestRegistry_Metadata_ReturnsDescriptionFromWithMetadata(t *testing.T) {
	r := NewRegistry()
	sma := NewSMACrossover()
	if err := r.Register(sma); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	md, err := r.Metadata(sma.ID())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if md.Description == "" {
		t.Fatal("expected non-empty description from WithMetadata")
	}
}

func TestRegistry_ListAll_CoversEveryRegisteredStrategy(t *testing.T) {
	r := NewRegistry()
	sma := NewSMACrossover()
	rsi := NewRSIMeanReversion()
	if err := r.Register(sma); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register(rsi); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	all := r.ListAll()
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}
	if _, ok := all[sma.ID()]; !ok {
		t.Fatalf("missing metadata for %s", sma.ID())
	}
	if _, ok := all[rsi.ID()]; !ok {
		t.Fatalf("missing metadata for %s", rsi.ID())
	}
}
