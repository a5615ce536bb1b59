package domain

import "strings"

// TypeKeywords maps a canonical document type to the bilingual keywords
// accepted as a type match. Fixed configuration, not computed.
var TypeKeywords = map[string][]string{
	"passport":          {"passport", "جواز سفر", "جواز"},
	"photo":             {"photo", "صورة", "صور شخصية"},
	"bank_statement":    {"bank", "statement", "كشف حساب", "بنك"},
	"employment_letter": {"employment", "employer", "عمل", "تعريف"},
	"travel_insurance":  {"insurance", "تأمين"},
	"flight_booking":    {"flight", "طيران", "حجز"},
	"hotel_booking":     {"hotel", "accommodation", "فندق", "إقامة"},
	"application_form":  {"application", "form", "نموذج", "طلب"},
	"national_id":       {"id", "هوية", "national"},
	"family_card":       {"family", "عائلة", "سجل"},
}

// keywordTypeOrder fixes the scan order so inference stays deterministic.
var keywordTypeOrder = []string{
	"passport",
	"photo",
	"bank_statement",
	"employment_letter",
	"travel_insurance",
	"flight_booking",
	"hotel_booking",
	"application_form",
	"national_id",
	"family_card",
}

// InferDocumentType guesses a canonical document type from free text,
// returning "" when no keyword hits.
func InferDocumentType(text string) string {
	lower := strings.ToLower(text)
	for _, docType := range keywordTypeOrder {
		for _, keyword := range TypeKeywords[docType] {
			if strings.Contains(lower, keyword) {
				return docType
			}
		}
	}
	return ""
}
