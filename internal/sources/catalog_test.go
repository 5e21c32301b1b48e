package sources

import "testing"

func TestLoadCatalog(t *testing.T) {
	cat, err := LoadCatalog("")
	if err != nil {
		t.Fatalf("load embedded catalog: %v", err)
	}
	if len(cat.Entries) == 0 {
		t.Fatal("embedded catalog is empty")
	}

	seen := map[string]bool{}
	for _, e := range cat.Entries {
		if e.ID == "" {
			t.Errorf("entry %q has no id", e.Title)
		}
		if seen[e.ID] {
			t.Errorf("duplicate id %q", e.ID)
		}
		seen[e.ID] = true
		if e.Title == "" || e.Category == "" || e.Location == "" {
			t.Errorf("entry %q is missing required fields", e.ID)
		}
	}

	if !seen["brooklyn-mobile-clinic"] {
		t.Error("expected brooklyn-mobile-clinic in the catalog")
	}
}
