package embassy

import (
	"strings"
	"testing"
)

func TestParseHTMLRequirements(t *testing.T) {
	page := []byte(`
<html><body>
<nav><ul><li>Home</li><li>Contact us</li></ul></nav>
<h2>Visa requirements</h2>
<ul>
  <li>Valid passport with at least six months validity</li>
  <li>Recent <b>bank statement</b> covering the last three months</li>
  <li>Two recent passport-size photos with white background</li>
  <li>Travel insurance covering the whole stay</li>
</ul>
</body></html>`)

	requirements, err := parseHTMLRequirements(page, "FR")
	if err != nil {
		t.Fatalf("parseHTMLRequirements() error = %v", err)
	}
	if len(requirements) != 4 {
		t.Fatalf("requirements = %d, want 4 (navigation items filtered)", len(requirements))
	}
	if requirements[0].ID != "req-fr-1" {
		t.Fatalf("id = %s, want req-fr-1", requirements[0].ID)
	}
	if requirements[0].DocumentType != "passport" {
		t.Fatalf("type = %s, want passport", requirements[0].DocumentType)
	}
	if requirements[1].DocumentType != "bank_statement" {
		t.Fatalf("type = %s, want bank_statement", requirements[1].DocumentType)
	}
	if requirements[1].Category != "financial" {
		t.Fatalf("category = %s, want financial", requirements[1].Category)
	}
	if !strings.Contains(requirements[1].DescriptionPrimary, "bank statement covering") {
		t.Fatalf("nested markup not collapsed: %q", requirements[1].DescriptionPrimary)
	}
	for _, req := range requirements {
		if !req.IsMandatory {
			t.Fatalf("scraped requirement %s must be mandatory", req.ID)
		}
	}
}

func TestRequirementsFromLinesFilters(t *testing.T) {
	lines := []string{
		"Passport",
		"Our opening hours are Sunday to Thursday morning",
		"Completed visa application form signed by the applicant",
		"Hotel booking confirmation for the full duration",
	}
	requirements := requirementsFromLines(lines, "de")
	if len(requirements) != 2 {
		t.Fatalf("requirements = %d, want 2", len(requirements))
	}
	if requirements[0].DocumentType != "application_form" {
		t.Fatalf("type = %s, want application_form", requirements[0].DocumentType)
	}
	if requirements[1].DocumentType != "hotel_booking" {
		t.Fatalf("type = %s, want hotel_booking", requirements[1].DocumentType)
	}
	if requirements[1].Category != "accommodation" {
		t.Fatalf("category = %s, want accommodation", requirements[1].Category)
	}
}

func TestCategoryFor(t *testing.T) {
	cases := map[string]string{
		"passport":          "personal_documents",
		"bank_statement":    "financial",
		"employment_letter": "employment",
		"flight_booking":    "travel",
		"hotel_booking":     "accommodation",
		"application_form":  "application",
		"":                  "other",
	}
	for docType, want := range cases {
		if got := categoryFor(docType); got != want {
			t.Errorf("categoryFor(%q) = %q, want %q", docType, got, want)
		}
	}
}

func TestLoadCatalog(t *testing.T) {
	catalog, err := loadCatalog()
	if err != nil {
		t.Fatalf("loadCatalog() error = %v", err)
	}
	tourist, ok := catalog["tourist"]
	if !ok || len(tourist) == 0 {
		t.Fatal("catalog must carry a tourist set")
	}
	for _, entry := range tourist {
		if entry.ID == "" || entry.DescriptionPrimary == "" || entry.DescriptionSecondary == "" {
			t.Fatalf("catalog entry incomplete: %+v", entry)
		}
	}

	req := tourist[0].toDomain("fr")
	if !strings.HasPrefix(req.ID, "req-fr-") {
		t.Fatalf("id = %s, want req-fr- prefix", req.ID)
	}
}
