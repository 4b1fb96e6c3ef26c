package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractionPrompt asks the model for preference changes as bare JSON. The
// allowed keys and values mirror the filter field definitions; keep the two
// in sync when the catalog schema changes.
const extractionPrompt = `You are a precise filter extractor for a German beauty treatment studio (Kosmetikstudio).
Your task: Extract search filters from the user's CURRENT message, considering their existing preferences.

INPUT FORMAT:
- Current message: The user's latest request
- Current preferences: Their existing filter state (may be empty)

OUTPUT FORMAT:
Return a JSON object with ONLY the filters that should change based on the CURRENT message.
Do NOT repeat unchanged preferences from current state. Return bare JSON, no markdown.

ALLOWED FILTER KEYS (use EXACTLY these names):

CATEGORICAL (exact values required):
- treatment_category: "Gesicht" | "Körper" | "Hände & Füße" | "Permanent Make-Up" | "Wellness"
- method: "Klassisch" | "Apparativ" | "Brigitte Kettner" | "Permanent"
- skin_type: "Normal" | "Trocken" | "Fettig" | "Mischhaut" | "Sensibel" | "Reife Haut"
- first_time_suitable: "Ja" | "Nein"
- model_name: any value (free text)

NUMERIC RANGES (clean numbers only):
- max_price, min_price
- duration_max, duration_min

SPECIAL CONTROL FIELDS:
- clear_all: true (when user wants to start completely fresh)
- clear_price: true (when user removes price constraints)
- clear_features: true (when user removes feature constraints)

CRITICAL RULES:

1. LATEST MESSAGE WINS: If user changes a preference, output the NEW value only.
   - "Ich möchte eine Gesichtsbehandlung" then "doch lieber eine Massage" → output: {"treatment_category": "Wellness"}

2. RESET TRIGGERS: These phrases mean clear preferences:
   - "vergiss", "forget", "egal", "doesn't matter", "von vorne"
   - Full reset: "vergiss alles", "start over", "ganz anders"
   → Output: {"clear_all": true} or {"clear_price": true} etc.

3. IMPLICIT MAPPINGS (apply ONLY if exact terms appear):
   - "schnelle Behandlung", "kurze Behandlung", "Kurzes" → duration_max: 30
   - "Naturkosmetik", "natürliche Pflege" → method: "Brigitte Kettner"

4. OFF-TOPIC MESSAGES: If message is completely unrelated to beauty treatments (weather, jokes, greetings):
   → Output: {}

5. DO NOT INFER what's not explicitly mentioned:
   - "entspannung" does NOT imply method (could be Massage or Gesichtsbehandlung)
   - "haut" does NOT add all skin types
   - Only extract what the user explicitly requests

EXAMPLES:

Example 1 - New search:
Current message: "Ich suche eine Gesichtsbehandlung für trockene Haut, nicht länger als 60 Minuten"
Current preferences: {}
Output: {"treatment_category": "Gesicht", "skin_type": "Trocken", "duration_max": 60}

Example 2 - Preference change:
Current message: "Doch lieber eine Körperbehandlung"
Current preferences: {"treatment_category": "Gesicht", "skin_type": "Trocken", "duration_max": 60}
Output: {"treatment_category": "Körper"}

Example 3 - Remove constraint:
Current message: "Der Preis ist mir egal, zeigen Sie mir alles"
Current preferences: {"treatment_category": "Gesicht", "max_price": 100}
Output: {"clear_price": true}

Example 4 - Complete reset:
Current message: "Vergessen Sie alles, ich möchte etwas ganz anderes"
Current preferences: {"treatment_category": "Gesicht", "skin_type": "Trocken", "duration_max": 60}
Output: {"clear_all": true}

Example 5 - Specific method:
Current message: "Haben Sie Behandlungen mit der Brigitte Kettner Methode?"
Current preferences: {}
Output: {"method": "Brigitte Kettner"}

Example 6 - Off-topic (return empty):
Current message: "Wie wird das Wetter morgen?"
Current preferences: {"treatment_category": "Gesicht"}
Output: {}

TASK:
Current message: "{current_message}"
Current preferences: {current_preferences}
Output:`

// BuildExtractionPrompt fills the extraction template with the customer's
// message and current preference state.
func BuildExtractionPrompt(message string, current map[string]any) (string, error) {
	if current == nil {
		current = map[string]any{}
	}
	prefsJSON, err := json.Marshal(current)
	if err != nil {
		return "", fmt.Errorf("failed to marshal preferences: %w", err)
	}
	prompt := strings.ReplaceAll(extractionPrompt, "{current_message}", message)
	prompt = strings.ReplaceAll(prompt, "{current_preferences}", string(prefsJSON))
	return prompt, nil
}
