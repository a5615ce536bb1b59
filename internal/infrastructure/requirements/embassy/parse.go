package embassy

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"

	"github.com/haithamq/visaflow/internal/core/domain"
)

// minRequirementChars filters navigation crumbs and headings out of the
// scraped list items.
const minRequirementChars = 20

// parseHTMLRequirements extracts candidate requirement lines from the list
// items of an embassy page and types them through the keyword table.
func parseHTMLRequirements(page []byte, countryID string) ([]domain.Requirement, error) {
	root, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var lines []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "li" {
			if text := collapseText(n); text != "" {
				lines = append(lines, text)
			}
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)

	return requirementsFromLines(lines, countryID), nil
}

// parsePDFRequirements handles embassies that publish requirements as a
// PDF document instead of a web page.
func parsePDFRequirements(data []byte, countryID string) ([]domain.Requirement, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	textReader, err := reader.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(textReader); err != nil {
		return nil, fmt.Errorf("read pdf text: %w", err)
	}

	return requirementsFromLines(strings.Split(buf.String(), "\n"), countryID), nil
}

func requirementsFromLines(lines []string, countryID string) []domain.Requirement {
	requirements := make([]domain.Requirement, 0, len(lines))
	for _, line := range lines {
		text := strings.TrimSpace(line)
		if len(text) < minRequirementChars {
			continue
		}
		docType := domain.InferDocumentType(text)
		if docType == "" && !strings.Contains(strings.ToLower(text), "visa") {
			continue
		}

		requirements = append(requirements, domain.Requirement{
			ID:                 fmt.Sprintf("req-%s-%d", strings.ToLower(countryID), len(requirements)+1),
			DescriptionPrimary: text,
			Category:           categoryFor(docType),
			IsMandatory:        true,
			DocumentType:       docType,
		})
	}
	return requirements
}

func categoryFor(docType string) string {
	switch docType {
	case "passport", "photo", "national_id", "family_card":
		return "personal_documents"
	case "bank_statement":
		return "financial"
	case "employment_letter":
		return "employment"
	case "travel_insurance", "flight_booking":
		return "travel"
	case "hotel_booking":
		return "accommodation"
	case "application_form":
		return "application"
	default:
		return "other"
	}
}

func collapseText(n *html.Node) string {
	var builder strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			builder.WriteString(node.Data)
			builder.WriteString(" ")
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(builder.String()), " ")
}
