package catalog

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAddCurrency_CaseVariantsCollapse(t *testing.T) {
	c := New()

	if got := c.AddCurrency("jpy"); got != Added {
		t.Fatalf("AddCurrency(jpy) = %s, want %s", got, Added)
	}
	if got := c.AddCurrency(" JPY "); got != AlreadyExists {
		t.Errorf("AddCurrency(JPY) = %s, want %s", got, AlreadyExists)
	}
	if diff := cmp.Diff([]string{"JPY"}, c.Snapshot().CustomCurrencies); diff != "" {
		t.Errorf("custom currencies mismatch (-want +got):\n%s", diff)
	}
}

func TestAddCurrency_BuiltinIsAlreadyPresent(t *testing.T) {
	c := New()
	if got := c.AddCurrency("usd"); got != AlreadyExists {
		t.Errorf("AddCurrency(usd) = %s, want %s", got, AlreadyExists)
	}
	if got := c.AddCurrency("USD"); got != AlreadyExists {
		t.Errorf("AddCurrency(USD) = %s, want %s", got, AlreadyExists)
	}
	if n := len(c.Snapshot().CustomCurrencies); n != 0 {
		t.Errorf("expected no custom currencies, got %d", n)
	}
}

func TestAddCategory(t *testing.T) {
	tests := []struct {
		name string
		add  []string
		want []Outcome
		kept []string
	}{
		{"trims whitespace", []string{"  Coffee  "}, []Outcome{Added}, []string{"Coffee"}},
		{"blank rejected", []string{"   "}, []Outcome{Rejected}, []string{}},
		{"duplicate is a no-op", []string{"Coffee", "Coffee"}, []Outcome{Added, AlreadyExists}, []string{"Coffee"}},
		{"no case folding", []string{"coffee", "Coffee"}, []Outcome{Added, Added}, []string{"coffee", "Coffee"}},
		{"builtin exists", []string{"Food"}, []Outcome{AlreadyExists}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			for i, name := range tt.add {
				if got := c.AddCategory(name); got != tt.want[i] {
					t.Errorf("AddCategory(%q) = %s, want %s", name, got, tt.want[i])
				}
			}
			if diff := cmp.Diff(tt.kept, c.Snapshot().CustomCategories); diff != "" {
				t.Errorf("custom categories mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRemove(t *testing.T) {
	c := New()
	c.AddCategory("Coffee")
	c.AddCurrency("CHF")

	if got := c.RemoveCategory("Food"); got != Builtin {
		t.Errorf("RemoveCategory(Food) = %s, want %s", got, Builtin)
	}
	if got := c.RemoveCategory("Tea"); got != NotFound {
		t.Errorf("RemoveCategory(Tea) = %s, want %s", got, NotFound)
	}
	if got := c.RemoveCategory("Coffee"); got != Removed {
		t.Errorf("RemoveCategory(Coffee) = %s, want %s", got, Removed)
	}
	if c.HasCategory("Coffee") {
		t.Error("Coffee still present after removal")
	}

	if got := c.RemoveCurrency("inr"); got != Builtin {
		t.Errorf("RemoveCurrency(inr) = %s, want %s", got, Builtin)
	}
	if got := c.RemoveCurrency("chf"); got != Removed {
		t.Errorf("RemoveCurrency(chf) = %s, want %s", got, Removed)
	}
	if got := c.RemoveCurrency("CHF"); got != NotFound {
		t.Errorf("second RemoveCurrency(CHF) = %s, want %s", got, NotFound)
	}
}

func TestDisplayCurrency(t *testing.T) {
	c := New()
	if got := c.DisplayCurrency(); got != "INR" {
		t.Fatalf("default display currency = %s, want INR", got)
	}
	if c.SetDisplayCurrency("XYZ") {
		t.Error("SetDisplayCurrency accepted unknown code")
	}

	c.AddCurrency("sgd")
	if !c.SetDisplayCurrency("sgd") {
		t.Fatal("SetDisplayCurrency(sgd) failed")
	}
	if got := c.DisplayCurrency(); got != "SGD" {
		t.Errorf("display currency = %s, want SGD", got)
	}

	c.RemoveCurrency("SGD")
	if got := c.DisplayCurrency(); got != "INR" {
		t.Errorf("display currency after removal = %s, want INR", got)
	}
}

func TestGlyphs(t *testing.T) {
	c := New()
	c.AddCategory("Pets")

	if got := c.Glyph("Food"); got != "🍔" {
		t.Errorf("Glyph(Food) = %q", got)
	}
	if got := c.Glyph("Pets"); got != CustomGlyph {
		t.Errorf("Glyph(Pets) = %q, want custom glyph", got)
	}
	if got := c.Glyph("Nope"); got != UnknownGlyph {
		t.Errorf("Glyph(Nope) = %q, want unknown glyph", got)
	}

	// Catalogs do not share glyph state.
	other := New()
	if got := other.Glyph("Pets"); got != UnknownGlyph {
		t.Errorf("glyph leaked across catalogs: %q", got)
	}

	c.RemoveCategory("Pets")
	if _, ok := c.Glyphs()["Pets"]; ok {
		t.Error("glyph kept after category removal")
	}
}

func TestCategories(t *testing.T) {
	c := New()
	c.AddCategory("Pets")
	cats := c.Categories()

	if len(cats) != len(BuiltinCategories)+1 {
		t.Fatalf("got %d categories, want %d", len(cats), len(BuiltinCategories)+1)
	}
	last := cats[len(cats)-1]
	if diff := cmp.Diff(Category{Name: "Pets", Glyph: CustomGlyph}, last); diff != "" {
		t.Errorf("custom category mismatch (-want +got):\n%s", diff)
	}
	if !cats[0].Builtin {
		t.Error("first category should be builtin")
	}
}

func TestSnapshotRestore(t *testing.T) {
	c := New()
	c.AddCategory("Pets")
	c.AddCurrency("aud")
	c.SetDisplayCurrency("AUD")

	restored := New()
	restored.Restore(c.Snapshot())
	if diff := cmp.Diff(c.Snapshot(), restored.Snapshot()); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
	if got := restored.Glyph("Pets"); got != CustomGlyph {
		t.Errorf("restored glyph = %q", got)
	}

	restored.Restore(Snapshot{
		CustomCategories: []string{"Food", " ", "Gym", "Gym"},
		CustomCurrencies: []string{"usd", "cad"},
		DisplayCurrency:  "NOPE",
	})
	want := Snapshot{
		CustomCategories: []string{"Gym"},
		CustomCurrencies: []string{"CAD"},
		DisplayCurrency:  "INR",
	}
	if diff := cmp.Diff(want, restored.Snapshot()); diff != "" {
		t.Errorf("restore should drop invalid entries (-want +got):\n%s", diff)
	}
	if restored.HasCategory("Pets") {
		t.Error("Restore kept previous custom category")
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.AddCurrency("krw")
			c.Categories()
			c.DisplayCurrency()
		}()
	}
	wg.Wait()

	if n := len(c.Snapshot().CustomCurrencies); n != 1 {
		t.Errorf("expected one KRW entry, got %d", n)
	}
}
