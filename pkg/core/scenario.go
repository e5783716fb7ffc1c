package core

// Scenario is a named persona with a fixed system instruction guiding reply
// style and content. The set is defined at startup and never changes.
type Scenario struct {
	ID                string
	DisplayName       string
	SystemInstruction string
}

// ScenarioInfo is the presentation-facing subset of a scenario.
type ScenarioInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Registry maps scenario identifiers to scenarios. Lookups never fail: an
// unknown id resolves to the default scenario.
type Registry struct {
	order     []string
	scenarios map[string]Scenario
	defaultID string
}

// NewRegistry builds a registry from the given scenarios, preserving order for
// List. The first scenario is the default.
func NewRegistry(scenarios ...Scenario) *Registry {
	r := &Registry{scenarios: make(map[string]Scenario, len(scenarios))}
	for _, sc := range scenarios {
		if _, exists := r.scenarios[sc.ID]; exists {
			continue
		}
		r.order = append(r.order, sc.ID)
		r.scenarios[sc.ID] = sc
	}
	if len(r.order) > 0 {
		r.defaultID = r.order[0]
	}
	return r
}

// Get resolves a scenario id, falling back to the default scenario when the id
// is unknown.
func (r *Registry) Get(id string) Scenario {
	if sc, ok := r.scenarios[id]; ok {
		return sc
	}
	return r.scenarios[r.defaultID]
}

// List returns scenario ids and display names in registration order.
func (r *Registry) List() []ScenarioInfo {
	infos := make([]ScenarioInfo, 0, len(r.order))
	for _, id := range r.order {
		infos = append(infos, ScenarioInfo{ID: id, Name: r.scenarios[id].DisplayName})
	}
	return infos
}

// DefaultScenarios returns the reference deployment's persona set. The first
// entry doubles as the fallback for unknown ids.
func DefaultScenarios() []Scenario {
	return []Scenario{
		{
			ID:          "calling_agent",
			DisplayName: "Calling Agent (Appointment Scheduling)",
			SystemInstruction: `You are a professional appointment scheduling assistant.
Your job is to:
- Collect user's name
- Collect preferred date/time
- Confirm details
- Ask follow-up questions if info missing
- Maintain structured flow
Be concise and natural. Once finished, summarize the appointment and say goodbye.`,
		},
		{
			ID:          "customer_support",
			DisplayName: "Customer Support (Empathetic Agent)",
			SystemInstruction: `You are a calm and empathetic customer support agent.
Steps:
1. Ask for issue
2. Ask for product/order ID
3. Provide solution or escalation (e.g., 'I will escalate this to our warehouse team')
4. Offer further help
Be polite, structured, and empathetic. Keep responses concise.`,
		},
		{
			ID:          "technical_assistant",
			DisplayName: "Technical Assistant (Step-by-Step)",
			SystemInstruction: `You are a step-by-step technical troubleshooting assistant.
Guide the user slowly.
Ask one question at a time.
Wait for confirmation before moving to next step.
Identify the problem, provide a single suggestion, and ask if it worked.`,
		},
	}
}
