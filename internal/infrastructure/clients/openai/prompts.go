package openai

import (
	"encoding/json"
	"fmt"
	"strings"
)

const termExtractionSystemPrompt = `You are an assistant for a Bosnian grocery discount platform. The user gives free-text grocery preferences in Bosnian. Return ONLY valid JSON with this schema:
{
  "terms": string[] (concrete product search terms, each 1-3 words)
}
Rules:
- Split compound phrases into individual products ("mlijeko i jogurt" becomes "mlijeko" and "jogurt").
- Drop generic words that name no concrete product (e.g. "hrana", "proizvodi", "namirnice", "akcija", "popust").
- Keep terms lowercase and without diacritics (c instead of č/ć, s instead of š, z instead of ž, d instead of đ).
- Do not invent products the user did not mention.`

type termExtractionPayload struct {
	Terms []string `json:"terms"`
}

func buildTermExtractionUserPrompt(phrases []string) string {
	return fmt.Sprintf("Preferences:\n%s\n", strings.Join(phrases, "\n"))
}

func parseTermExtractionPayload(data []byte) ([]string, error) {
	var payload termExtractionPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse term extraction payload: %w", err)
	}
	return payload.Terms, nil
}
