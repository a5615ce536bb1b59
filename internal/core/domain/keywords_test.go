package domain

import "testing"

func TestInferDocumentType(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"Valid passport with six months validity", "passport"},
		{"جواز سفر ساري المفعول", "passport"},
		{"Recent bank statement covering three months", "bank_statement"},
		{"كشف حساب بنكي لآخر ثلاثة أشهر", "bank_statement"},
		{"Travel insurance covering the Schengen area", "travel_insurance"},
		{"Confirmed hotel booking for the full stay", "hotel_booking"},
		{"Completed application form signed by the applicant", "application_form"},
		{"Some unrelated text about the weather", ""},
	}
	for _, tc := range cases {
		if got := InferDocumentType(tc.text); got != tc.want {
			t.Errorf("InferDocumentType(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestInferDocumentTypeDeterministic(t *testing.T) {
	// "family photo" hits both family_card and photo keywords; the scan
	// order must keep the answer stable across runs.
	text := "family photo for all members"
	first := InferDocumentType(text)
	for i := 0; i < 50; i++ {
		if got := InferDocumentType(text); got != first {
			t.Fatalf("InferDocumentType unstable: %q then %q", first, got)
		}
	}
}
