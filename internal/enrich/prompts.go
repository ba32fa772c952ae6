package enrich

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/healthmap/internal/model"
)

const enrichSystem = "You are a healthcare industry expert who extracts structured information about healthcare companies. " +
	"IMPORTANT: Return ONLY the raw JSON object with no additional text, explanations, or markdown formatting."

const inferSystem = "You are a healthcare industry expert who infers relationships between healthcare companies. " +
	"IMPORTANT: Return ONLY the raw JSON array with no additional text, explanations, or markdown formatting."

func relationshipTypeList() string {
	names := make([]string, len(model.RelationshipTypes))
	for i, t := range model.RelationshipTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

// enrichPrompt renders scraped facts into the single-entity extraction prompt.
// Infobox and section keys are sorted so identical facts give identical prompts.
func enrichPrompt(name string, facts model.ScrapedFacts) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are a healthcare industry expert. Based on the following information about %s, please identify:\n\n", name)
	b.WriteString("1. Entity type (Payer, Provider, Vendor, or Integrated)\n")
	b.WriteString("2. Parent company (if any)\n")
	b.WriteString("3. Subsidiaries (list all that are mentioned)\n")
	b.WriteString("4. Annual revenue (with B for billions or M for millions)\n")
	b.WriteString("5. Key relationships with other healthcare entities\n\n")

	fmt.Fprintf(&b, "Information about %s:\n\n", name)
	fmt.Fprintf(&b, "SUMMARY:\n%s\n\n", facts.Summary)

	b.WriteString("INFOBOX DATA:\n")
	for _, k := range sortedKeys(facts.Infobox) {
		fmt.Fprintf(&b, "%s: %s\n", k, facts.Infobox[k])
	}

	b.WriteString("\nADDITIONAL SECTIONS:\n")
	for i, k := range sortedKeys(facts.Sections) {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "## %s\n%s\n", k, strings.TrimRight(facts.Sections[k], "\n"))
	}

	if len(facts.News) > 0 {
		b.WriteString("\nRECENT NEWS:\n")
		for _, a := range facts.News {
			fmt.Fprintf(&b, "- %s", a.Title)
			if a.Source != "" || a.Date != "" {
				fmt.Fprintf(&b, " (%s)", strings.Trim(a.Source+", "+a.Date, ", "))
			}
			if a.Summary != "" {
				fmt.Fprintf(&b, ": %s", a.Summary)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\nReturn ONLY a JSON object following this exact schema, with no additional text:\n")
	fmt.Fprintf(&b, `{
  "name": %q,
  "type": "Entity Type",
  "parent": "Parent Company Name or null",
  "revenue": "Revenue with B/M suffix or null",
  "subsidiaries": ["Subsidiary1", "Subsidiary2"],
  "relationships": [
    {"target": "Company Name", "type": "relationship_type"}
  ]
}
`, name)
	fmt.Fprintf(&b, "\nFor relationship types, use: %s\n\n", relationshipTypeList())
	b.WriteString("If you're uncertain about any field, use your knowledge of the healthcare industry to make an educated guess, " +
		"but mark uncertain fields with an asterisk (*) at the end.\n")
	return b.String()
}

// inferPrompt asks for the full entity set back with relationships added.
func inferPrompt(entitiesJSON string) string {
	var b strings.Builder
	b.WriteString("You are a healthcare industry expert. Based on the following information about multiple healthcare entities, " +
		"please infer additional relationships between them that might not be explicitly stated.\n\n")
	fmt.Fprintf(&b, "Entities:\n%s\n\n", entitiesJSON)
	b.WriteString("For each entity, add or update the \"relationships\" array with any additional relationships you can infer " +
		"based on industry knowledge and the data provided.\n\n")
	b.WriteString("Return ONLY a JSON array of the updated entities, with no additional text.\n\n")
	fmt.Fprintf(&b, "For relationship types, use: %s\n", relationshipTypeList())
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
