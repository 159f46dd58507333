package entities

// FlowStage tags the contact-capture conversation state.
type FlowStage string

const (
	StageNone      FlowStage = ""
	StageAskName   FlowStage = "ask_name"
	StageAskMethod FlowStage = "ask_method"
	StageAskValue  FlowStage = "ask_value"
	StageAskSlot   FlowStage = "ask_slot"
)

// Contact methods a prospect can choose.
const (
	MethodWhatsApp = "whatsapp"
	MethodEmail    = "email"
	MethodLlamada  = "llamada"
)

// ContactFlow is the accumulated contact-capture state for one session.
// At most one flow is active per session; advancing the stage is the only
// mutation, and reaching a terminal action resets it to the zero value.
type ContactFlow struct {
	Stage   FlowStage `json:"stage"`
	Name    string    `json:"name,omitempty"`
	Method  string    `json:"method,omitempty"`
	Contact string    `json:"contact,omitempty"`
}

// Active reports whether a capture flow is in progress.
func (f ContactFlow) Active() bool {
	return f.Stage != StageNone
}
