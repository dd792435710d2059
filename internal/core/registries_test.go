package core

import "testing"

func TestSkuRegistry(t *testing.T) {
	r := NewSkuRegistry(map[string]SkuInfo{"OLD": {EntityID: 7, TypeID: "simple"}})

	if !r.IsExisting("OLD") {
		t.Error("IsExisting(OLD) = false, want true")
	}
	if r.IsExisting("old") {
		t.Error("IsExisting(old) = true, want false (SKUs are case sensitive)")
	}

	if !r.Add("NEW", SkuInfo{TypeID: "virtual", Existing: true}) {
		t.Fatal("Add(NEW) = false, want true")
	}
	if r.Add("NEW", SkuInfo{TypeID: "simple"}) {
		t.Error("second Add(NEW) = true, want false")
	}
	if r.Add("OLD", SkuInfo{TypeID: "virtual"}) {
		t.Error("Add(OLD) = true, want false")
	}

	info, _ := r.Get("NEW")
	if info.TypeID != "virtual" || info.Existing {
		t.Errorf("Get(NEW) = %+v, want virtual and not existing", info)
	}
	if info, _ := r.Get("OLD"); info.TypeID != "simple" {
		t.Errorf("Get(OLD).TypeID = %q, want simple", info.TypeID)
	}

	r.SetEntityID("NEW", 42)
	if info, _ := r.Get("NEW"); info.EntityID != 42 {
		t.Errorf("EntityID = %d, want 42", info.EntityID)
	}

	r.MarkInvalid("NEW")
	if !r.IsInvalid("NEW") {
		t.Error("IsInvalid(NEW) = false, want true")
	}
	r.MarkValid("NEW")
	if r.IsInvalid("NEW") {
		t.Error("IsInvalid(NEW) = true after MarkValid")
	}

	if r.Len() != 2 || r.Added() != 1 {
		t.Errorf("Len() = %d, Added() = %d, want 2, 1", r.Len(), r.Added())
	}
}

func TestURLKeyRegistry_Claim(t *testing.T) {
	r := NewURLKeyRegistry()

	if owner, ok := r.Claim(1, "shirt.html", "A", 1); !ok || owner != "A" {
		t.Fatalf("Claim() = %q, %v, want A, true", owner, ok)
	}
	if owner, ok := r.Claim(1, "shirt.html", "A", 5); !ok || owner != "A" {
		t.Errorf("reclaim = %q, %v, want A, true", owner, ok)
	}
	if _, row, _ := r.Owner(1, "shirt.html"); row != 1 {
		t.Errorf("Owner() row = %d, want 1", row)
	}
	if owner, ok := r.Claim(1, "shirt.html", "B", 2); ok || owner != "A" {
		t.Errorf("Claim() by B = %q, %v, want A, false", owner, ok)
	}
	if _, ok := r.Claim(2, "shirt.html", "B", 2); !ok {
		t.Error("Claim() in another store = false, want true")
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
}

func TestFormatURLKey(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Blue Shirt", "blue-shirt"},
		{"  Crème Brûlée  ", "creme-brulee"},
		{"Über-Jacke (XL)", "uber-jacke-xl"},
		{"100% Cotton!!", "100-cotton"},
		{"---", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := FormatURLKey(tt.input); got != tt.want {
				t.Errorf("FormatURLKey(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestURLKeyFor(t *testing.T) {
	tests := []struct {
		name      string
		data      map[string]string
		wantKey   string
		wantCheck bool
	}{
		{name: "explicit key lowercased", data: map[string]string{"url_key": "My-Key", "name": "Other"}, wantKey: "my-key", wantCheck: true},
		{name: "derived from name", data: map[string]string{"name": "Red Hat"}, wantKey: "red-hat", wantCheck: true},
		{name: "not visible skips check", data: map[string]string{"name": "Red Hat", "visibility": VisibilityNotVisible}, wantKey: "red-hat", wantCheck: false},
		{name: "nothing to check", data: map[string]string{"sku": "A"}, wantKey: "", wantCheck: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := NewRow(1, tt.data)
			if got := urlKeyFor(row); got != tt.wantKey {
				t.Errorf("urlKeyFor() = %q, want %q", got, tt.wantKey)
			}
			if got := needsURLKeyCheck(row); got != tt.wantCheck {
				t.Errorf("needsURLKeyCheck() = %v, want %v", got, tt.wantCheck)
			}
		})
	}
}
