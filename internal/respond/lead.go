package respond

import (
	"fmt"
	"strings"

	"github.com/florianweber/lena/internal/scoring"
)

// signalInstructions are the lead-handling blocks appended to the prompt
// depending on the detected signal level and expert-offer state.
var signalInstructions = map[string]string{
	"expert_accepted": `EXPERTENKONTAKT BEREITS ANGENOMMEN:
Die Kundin hat dem Kontakt durch unsere Beraterin bereits zugestimmt.
KEIN weiteres Expertenangebot machen. Beantworten Sie die Frage normal und hilfsbereit.`,

	"hot_with_expert": `STARKES KAUFSIGNAL (HOT):
Die Kundin ist sehr interessiert. Antworten Sie begeistert aber nicht aufdringlich.
Bieten Sie am Ende den Expertenkontakt an, genau so formuliert:
"{expert_phrase}"`,

	"hot_no_expert": `STARKES KAUFSIGNAL (HOT):
Die Kundin ist sehr interessiert. Antworten Sie begeistert aber nicht aufdringlich.
KEIN Expertenangebot in dieser Antwort (wurde bereits angeboten oder ist gerade nicht passend).`,

	"warm_with_expert": `INTERESSE ERKANNT (WARM):
Die Kundin zeigt echtes Interesse. Antworten Sie hilfsbereit und konkret.
Wenn es natürlich passt, bieten Sie am Ende den Expertenkontakt an, genau so formuliert:
"{expert_phrase}"`,

	"warm_no_expert": `INTERESSE ERKANNT (WARM):
Die Kundin zeigt echtes Interesse. Antworten Sie hilfsbereit und konkret.
KEIN Expertenangebot in dieser Antwort.`,

	"cool": `ZURÜCKHALTENDES SIGNAL (COOL):
Die Kundin schaut sich nur um. Kein Druck, kein Expertenangebot.
Antworten Sie entspannt und informativ, lassen Sie ihr Raum.`,

	"mild_with_expert": `NEUTRALES SIGNAL (MILD):
Noch kein klares Kaufinteresse. Antworten Sie freundlich und informativ.
Nur wenn die Antwort es wirklich nahelegt, bieten Sie den Expertenkontakt an:
"{expert_phrase}"`,

	"mild_no_expert": `NEUTRALES SIGNAL (MILD):
Noch kein klares Kaufinteresse. Antworten Sie freundlich und informativ.
KEIN Expertenangebot in dieser Antwort.`,
}

// expertQuestionInstruction tells the model that the Ja/Nein choice is
// rendered by the UI, so the reply must end on the offer question.
const expertQuestionInstruction = `WICHTIG: Nach dieser Antwort werden der Kundin Ja/Nein-Buttons angezeigt.
Die Antwort MUSS mit der Expertenfrage enden ("... möchten Sie, dass sie Sie kontaktiert?").
Stellen Sie danach KEINE weitere Frage.`

// LeadInstruction picks the signal block for the prompt. expertPhrase is
// substituted into the *_with_expert variants; expertAccepted suppresses
// all further offers.
func (b *Builder) LeadInstruction(level scoring.SignalLevel, canOfferExpert bool, expertPhrase string, expertAccepted bool) string {
	if expertAccepted {
		return signalInstructions["expert_accepted"]
	}

	var key string
	switch level {
	case scoring.SignalHot:
		key = pick(canOfferExpert, "hot_with_expert", "hot_no_expert")
	case scoring.SignalWarm:
		key = pick(canOfferExpert, "warm_with_expert", "warm_no_expert")
	case scoring.SignalCool:
		key = "cool"
	default:
		key = pick(canOfferExpert, "mild_with_expert", "mild_no_expert")
	}

	return strings.ReplaceAll(signalInstructions[key], "{expert_phrase}", expertPhrase)
}

// ExpertQuestionInstruction returns the button-coordination block when a
// Ja/Nein choice will be shown, empty otherwise.
func (b *Builder) ExpertQuestionInstruction(pendingButtons bool) string {
	if !pendingButtons {
		return ""
	}
	return expertQuestionInstruction
}

// signalTriggers groups the hot keywords by the context they express, so
// the expert offer can speak to what the visitor actually asked about.
var signalTriggers = map[string][]string{
	"price": {
		"preis", "kosten", "was kostet", "euro", "€",
		"gutschein", "geschenkgutschein", "angebot",
		"rabatt", "nachlass",
	},
	"availability": {
		"termin", "verfügbar", "freie termine",
		"wann kann ich", "nächste woche",
		"sofort", "heute noch",
	},
	"consultation": {
		"beratungstermin", "beratung",
		"ausprobieren", "erstbehandlung",
		"termin buchen", "termin vereinbaren",
	},
}

// MatchInfo describes how well the last search matched the request.
type MatchInfo struct {
	ShowingAlternatives bool
	Unmatched           []string
}

// ExpertOfferPhrase selects the expert offer wording: mismatch context
// first, then HOT triggers by context (price, availability,
// consultation), then generic HOT, then the rotating WARM/MILD list.
// COOL never gets an offer. offerCount rotates multi-phrase lists so
// repeat offers do not repeat verbatim.
func (b *Builder) ExpertOfferPhrase(level scoring.SignalLevel, offerCount int, match MatchInfo, triggers []string) string {
	expert := b.bundle.ExpertTitle
	expertAlt := b.bundle.ExpertTitleAlt
	service := b.bundle.PrimaryService

	if match.ShowingAlternatives && len(match.Unmatched) > 0 {
		return fmt.Sprintf("Nicht alle Kriterien konnten erfüllt werden. Unsere %s kennt weitere Möglichkeiten – möchten Sie, dass sie Sie kontaktiert?", expert)
	}

	if level == scoring.SignalHot {
		switch {
		case triggersOverlap(triggers, signalTriggers["price"]):
			phrases := []string{
				fmt.Sprintf("Unsere %s kann Ihnen alle Preisdetails und Behandlungspakete erklären – möchten Sie, dass sie Sie kontaktiert?", expert),
				fmt.Sprintf("Für genaue Preise und individuelle Angebote ist unsere %s die Richtige – möchten Sie, dass sie Sie kontaktiert?", expert),
			}
			return phrases[offerCount%len(phrases)]
		case triggersOverlap(triggers, signalTriggers["availability"]):
			phrases := []string{
				fmt.Sprintf("Unsere %s kann die freien Termine sofort prüfen – möchten Sie, dass sie Sie kontaktiert?", expert),
				fmt.Sprintf("Unsere %s kennt alle aktuellen Verfügbarkeiten – möchten Sie, dass sie Sie kontaktiert?", expert),
			}
			return phrases[offerCount%len(phrases)]
		case triggersOverlap(triggers, signalTriggers["consultation"]):
			phrases := []string{
				fmt.Sprintf("Unsere %s kann einen %s für Sie organisieren – möchten Sie, dass sie Sie kontaktiert?", expert, service),
				fmt.Sprintf("Für eine persönliche Beratung ist unsere %s die beste Ansprechpartnerin – möchten Sie, dass sie Sie kontaktiert?", expert),
			}
			return phrases[offerCount%len(phrases)]
		default:
			return fmt.Sprintf("Unsere %s kann Ihnen alle Details klären – möchten Sie, dass sie Sie kontaktiert?", expert)
		}
	}

	if level == scoring.SignalWarm || level == scoring.SignalMild {
		phrases := []string{
			fmt.Sprintf("Unsere %s kann Ihnen alle Details zeigen – möchten Sie, dass sie Sie kontaktiert?", expert),
			fmt.Sprintf("Unsere %s kann Ihnen persönlich weiterhelfen – möchten Sie, dass sie Sie kontaktiert?", expertAlt),
			fmt.Sprintf("Wenn Sie mögen, meldet sich unsere %s bei Ihnen – möchten Sie das?", expert),
			fmt.Sprintf("Unsere %s beantwortet Ihnen gerne alle offenen Fragen – möchten Sie, dass sie Sie kontaktiert?", expert),
		}
		return phrases[offerCount%len(phrases)]
	}

	return ""
}

func triggersOverlap(matched, context []string) bool {
	for _, m := range matched {
		for _, c := range context {
			if m == c {
				return true
			}
		}
	}
	return false
}

func pick(cond bool, yes, no string) string {
	if cond {
		return yes
	}
	return no
}
