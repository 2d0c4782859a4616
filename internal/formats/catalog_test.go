package formats

import "testing"

// TestDefaultCatalogLookup verifies ids, aliases and case folding.
func TestDefaultCatalogLookup(t *testing.T) {
	c := Default()

	for _, id := range []string{"png", "PNG", ".png"} {
		option, ok := c.Lookup(id)
		if !ok {
			t.Fatalf("Lookup(%q) not found", id)
		}
		if option.Extension != ".png" {
			t.Fatalf("Lookup(%q).Extension = %q, want .png", id, option.Extension)
		}
	}

	option, ok := c.Lookup("jpeg")
	if !ok || option.ID != "jpg" {
		t.Fatalf("Lookup(jpeg) = %+v, %v; want jpg", option, ok)
	}
	if !option.SupportsQuality {
		t.Fatal("jpg should support quality")
	}

	if _, ok := c.Lookup("psd"); ok {
		t.Fatal("psd should not be an output format")
	}
}

// TestDefaultCatalogSameAsInput checks the pass-through option.
func TestDefaultCatalogSameAsInput(t *testing.T) {
	option, ok := Default().Lookup("same")
	if !ok {
		t.Fatal("same-as-input option missing")
	}
	if !option.KeepsExtension() {
		t.Fatal("same-as-input should keep extension")
	}
}

// TestIsInputExtension checks scanner extension matching.
func TestIsInputExtension(t *testing.T) {
	c := Default()
	for _, ext := range []string{".jpg", ".JPEG", "tif", ".webp"} {
		if !c.IsInputExtension(ext) {
			t.Fatalf("IsInputExtension(%q) = false, want true", ext)
		}
	}
	for _, ext := range []string{".txt", "", ".psd"} {
		if c.IsInputExtension(ext) {
			t.Fatalf("IsInputExtension(%q) = true, want false", ext)
		}
	}
	if !c.IsInputFile("/photos/IMG_0001.JPG") {
		t.Fatal("expected upper-case JPG to be recognized")
	}
}

// TestParseRejectsDuplicateIDs checks catalog validation.
func TestParseRejectsDuplicateIDs(t *testing.T) {
	data := []byte(`
output:
  - id: png
    name: PNG
  - id: PNG
    name: Again
`)
	if _, err := Parse(data); err == nil {
		t.Fatal("expected duplicate id error")
	}
}

// TestParseRejectsEmptyCatalog checks catalog validation.
func TestParseRejectsEmptyCatalog(t *testing.T) {
	if _, err := Parse([]byte("input_extensions: [.png]\n")); err == nil {
		t.Fatal("expected empty catalog error")
	}
}
