package scanner

// Badge is the colored marker shown next to an outcome.
type Badge struct {
	Label string `json:"label"`
	Icon  string `json:"icon,omitempty"`
	Color string `json:"color,omitempty"`
}

// View is the render description of a scanner, built by Render.
type View struct {
	Name         string        `json:"name"`
	Title        string        `json:"title"`
	Instructions string        `json:"instructions,omitempty"`
	State        ScanState     `json:"state"`
	Status       OutcomeStatus `json:"status,omitempty"`
	Message      string        `json:"message,omitempty"`
	Badge        *Badge        `json:"badge,omitempty"`
	ShowCamera   bool          `json:"show_camera"`
	ShowSpinner  bool          `json:"show_spinner"`
	Facing       Facing        `json:"facing"`
	Actions      []Action      `json:"actions"`
	BackRoute    string        `json:"back_route,omitempty"`
}

// HasAction reports whether action is rendered.
func (v View) HasAction(action Action) bool {
	for _, a := range v.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// Render maps a configuration and snapshot onto a view. It has no side
// effects and does not look at the camera or speech integrations.
func Render(cfg Config, snap Snapshot) View {
	state := snap.State
	if state == "" {
		state = StateIdle
	}

	view := View{
		Name:      snap.Name,
		Title:     cfg.Title,
		State:     state,
		Facing:    snap.Facing,
		BackRoute: cfg.BackRoute,
		Actions:   []Action{},
	}

	switch state {
	case StateIdle:
		view.Instructions = cfg.Instructions
		view.ShowCamera = true
	case StateProcessing:
		view.Message = cfg.ProcessingMessage
		view.ShowSpinner = true
	case StateResult:
		outcome := snap.Outcome
		if outcome == nil || !outcome.Status.Valid() {
			fallback := cfg.Fallback("")
			outcome = &fallback
		}
		cp := cfg.CopyFor(outcome.Status)
		label := outcome.ActionLabel
		if label == "" {
			label = cp.ActionLabel
		}
		view.Status = outcome.Status
		view.Message = outcome.Message
		view.Badge = &Badge{Label: label, Icon: cp.Icon, Color: cp.Color}
		view.Actions = append(view.Actions, ActionScanAgain)
	}

	if state != StateProcessing {
		if cfg.AllowCameraToggle {
			view.Actions = append(view.Actions, ActionToggleCamera)
		}
		if cfg.AllowRefresh {
			view.Actions = append(view.Actions, ActionRefresh)
		}
	}

	if cfg.BackRoute != "" {
		view.Actions = append(view.Actions, ActionBack)
	}

	return view
}
