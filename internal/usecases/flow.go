package usecases

import (
	"regexp"
	"strings"

	"zia_backend/internal/entities"
)

// FlowConfig is the per-tenant data the flow engine needs to render terminal
// replies. Passing it in keeps AdvanceFlow free of I/O and deterministic.
type FlowConfig struct {
	BrandName    string
	WhatsApp     string // tenant number for wa.me deep links
	ChecklistURL string
}

// UIHint is the payload of a "ui" SSE event: chips, checkout buttons and
// WhatsApp links the widget renders outside the chat bubbles.
type UIHint struct {
	Chips              []string `json:"chips,omitempty"`
	CheckoutURL        string   `json:"checkout_url,omitempty"`
	ChecklistURL       string   `json:"checklist_url,omitempty"`
	WhatsApp           string   `json:"whatsapp,omitempty"`
	Label              string   `json:"label,omitempty"`
	Suggestions        []string `json:"suggestions,omitempty"`
	ShowWhatsAppBubble bool     `json:"showWhatsAppBubble,omitempty"`
}

// FlowResult is the output of one flow transition.
type FlowResult struct {
	State    entities.ContactFlow
	Reply    string
	UI       *UIHint
	SaveLead bool                 // terminal transition: persist Captured as a lead
	Captured entities.ContactFlow // complete name/method/contact when SaveLead is set
	Slot     string               // non-empty: patch the last lead's meta with this slot
	Handled  bool                 // false means fall through to the LLM reply
}

var (
	quoteKeywords    = []string{"cotiz", "quote", "presupuesto"}
	purchaseKeywords = []string{"comprar", "compra", "pagar", "pago", "buy", "checkout", "contratar"}
	catalogKeywords  = []string{"catalogo", "catálogo", "catalog", "planes", "precio", "precios", "price"}
	cancelKeywords   = []string{"cancelar", "cancel", "olvidalo", "olvídalo", "ya no"}
	anytimePhrases   = []string{"cuando sea", "cualquier hora", "cualquiera", "a cualquier hora", "da igual", "no importa", "whenever", "anytime"}

	methodChips = []string{"WhatsApp", "Email", "Llamada"}

	emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	digitRe = regexp.MustCompile(`\D`)
)

func containsAny(msg string, keywords []string) bool {
	lower := strings.ToLower(msg)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// HasQuoteIntent reports whether a message should start the capture flow.
func HasQuoteIntent(msg string) bool {
	return containsAny(msg, quoteKeywords)
}

// HasPurchaseIntent reports whether a message asks to buy/pay.
func HasPurchaseIntent(msg string) bool {
	return containsAny(msg, purchaseKeywords)
}

// HasInterruptIntent reports whether an in-progress flow should be abandoned:
// purchase or catalog/price keywords, an explicit cancel, or a trailing
// question mark all mean the user has moved on. Resetting here before normal
// processing is the authoritative (latest-revision) ordering.
func HasInterruptIntent(msg string) bool {
	if HasPurchaseIntent(msg) || containsAny(msg, catalogKeywords) || containsAny(msg, cancelKeywords) {
		return true
	}
	return strings.HasSuffix(strings.TrimSpace(msg), "?")
}

// NormalizeMethod maps free text onto a contact method.
func NormalizeMethod(input string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(input))
	switch {
	case strings.Contains(lower, "whatsapp"), strings.Contains(lower, "wasap"), strings.Contains(lower, "whats"):
		return entities.MethodWhatsApp, true
	case strings.Contains(lower, "email"), strings.Contains(lower, "correo"), strings.Contains(lower, "mail"):
		return entities.MethodEmail, true
	case strings.Contains(lower, "llamada"), strings.Contains(lower, "llamar"), strings.Contains(lower, "telefono"), strings.Contains(lower, "teléfono"), strings.Contains(lower, "call"):
		return entities.MethodLlamada, true
	}
	return "", false
}

// NormalizePhone strips non-digits and validates length 8..15.
func NormalizePhone(input string) (string, bool) {
	digits := digitRe.ReplaceAllString(input, "")
	if len(digits) < 8 || len(digits) > 15 {
		return "", false
	}
	return digits, true
}

// ValidEmail validates and normalizes an email address.
func ValidEmail(input string) (string, bool) {
	email := strings.ToLower(strings.TrimSpace(input))
	if !emailRe.MatchString(email) {
		return "", false
	}
	return email, true
}

// MatchPlan finds the first catalog plan whose name or keywords appear in the
// message. Returns nil when nothing matches.
func MatchPlan(catalog []entities.Plan, msg string) *entities.Plan {
	lower := strings.ToLower(msg)
	for i := range catalog {
		p := &catalog[i]
		if p.Name != "" && strings.Contains(lower, strings.ToLower(p.Name)) {
			return p
		}
		for _, kw := range p.Keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				return p
			}
		}
	}
	return nil
}

func isAnytime(input string) bool {
	return containsAny(input, anytimePhrases)
}

// waLink builds a wa.me deep link from a raw number, empty if no number.
func waLink(number string) string {
	digits := digitRe.ReplaceAllString(number, "")
	if digits == "" {
		return ""
	}
	return "https://wa.me/" + digits
}

// AdvanceFlow is the single transition function of the contact-capture state
// machine: (state, input) -> (state, output). Failed validation re-prompts in
// the same state; that retry-in-place is intended, not an error path.
func AdvanceFlow(flow entities.ContactFlow, input string, cfg FlowConfig) FlowResult {
	text := strings.TrimSpace(input)

	switch flow.Stage {
	case entities.StageNone:
		if !HasQuoteIntent(text) {
			return FlowResult{State: flow, Handled: false}
		}
		reply := "¡Claro! Para preparar tu cotización, ¿cuál es tu nombre?"
		if cfg.BrandName != "" {
			reply = "¡Claro! En " + cfg.BrandName + " preparamos tu cotización. ¿Cuál es tu nombre?"
		}
		return FlowResult{
			State:   entities.ContactFlow{Stage: entities.StageAskName},
			Reply:   reply,
			Handled: true,
		}

	case entities.StageAskName:
		if text == "" {
			return FlowResult{
				State:   flow,
				Reply:   "¿Me compartes tu nombre?",
				Handled: true,
			}
		}
		next := flow
		next.Stage = entities.StageAskMethod
		next.Name = text
		return FlowResult{
			State:   next,
			Reply:   "Gracias, " + text + ". ¿Cómo prefieres que te contactemos?",
			UI:      &UIHint{Chips: append([]string(nil), methodChips...)},
			Handled: true,
		}

	case entities.StageAskMethod:
		method, ok := NormalizeMethod(text)
		if !ok {
			return FlowResult{
				State:   flow,
				Reply:   "¿WhatsApp, Email o Llamada?",
				UI:      &UIHint{Chips: append([]string(nil), methodChips...)},
				Handled: true,
			}
		}
		next := flow
		next.Stage = entities.StageAskValue
		next.Method = method
		var prompt string
		switch method {
		case entities.MethodEmail:
			prompt = "Perfecto. ¿Cuál es tu correo?"
		default:
			prompt = "Perfecto. ¿A qué número te escribimos? (con lada)"
		}
		return FlowResult{State: next, Reply: prompt, Handled: true}

	case entities.StageAskValue:
		return advanceValue(flow, text, cfg)

	case entities.StageAskSlot:
		if len(text) < 5 || isAnytime(text) {
			return FlowResult{
				State:   flow,
				Reply:   "¿Qué día y hora te acomoda mejor? Por ejemplo: martes a las 10am.",
				Handled: true,
			}
		}
		return FlowResult{
			State:   entities.ContactFlow{},
			Reply:   "Anotado: " + text + ". Te llamamos en ese horario. 📞",
			Slot:    text,
			Handled: true,
		}
	}

	return FlowResult{State: flow, Handled: false}
}

func advanceValue(flow entities.ContactFlow, text string, cfg FlowConfig) FlowResult {
	switch flow.Method {
	case entities.MethodEmail:
		email, ok := ValidEmail(text)
		if !ok {
			return FlowResult{
				State:   flow,
				Reply:   "Ese correo no parece válido. ¿Me lo compartes de nuevo?",
				Handled: true,
			}
		}
		done := flow
		done.Contact = email
		return FlowResult{
			State:    entities.ContactFlow{},
			Reply:    "¡Listo, " + flow.Name + "! Te enviamos la cotización a " + email + ".",
			UI:       &UIHint{Chips: []string{"Recibir checklist por email"}, ChecklistURL: cfg.ChecklistURL},
			SaveLead: true,
			Captured: done,
			Handled:  true,
		}

	case entities.MethodLlamada:
		phone, ok := NormalizePhone(text)
		if !ok {
			return FlowResult{
				State:   flow,
				Reply:   "Ese número no parece válido (8 a 15 dígitos). ¿Me lo repites?",
				Handled: true,
			}
		}
		done := flow
		done.Contact = phone
		next := done
		next.Stage = entities.StageAskSlot
		return FlowResult{
			State:    next,
			Reply:    "Perfecto. ¿Qué día y hora te acomoda para la llamada?",
			SaveLead: true,
			Captured: done,
			Handled:  true,
		}

	default: // whatsapp
		phone, ok := NormalizePhone(text)
		if !ok {
			return FlowResult{
				State:   flow,
				Reply:   "Ese número no parece válido (8 a 15 dígitos). ¿Me lo repites?",
				Handled: true,
			}
		}
		done := flow
		done.Contact = phone
		var ui *UIHint
		if link := waLink(cfg.WhatsApp); link != "" {
			ui = &UIHint{WhatsApp: link, ShowWhatsAppBubble: true}
		}
		return FlowResult{
			State:    entities.ContactFlow{},
			Reply:    "¡Listo, " + flow.Name + "! Te escribimos por WhatsApp. 💬",
			UI:       ui,
			SaveLead: true,
			Captured: done,
			Handled:  true,
		}
	}
}
