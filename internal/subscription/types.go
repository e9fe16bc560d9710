package subscription

// Status represents the status of all registered Kick webhook event subscriptions
type Status struct {
	Ok            bool    `json:"ok"`
	Subscriptions []State `json:"subscriptions"`
}

// State represents the state of a single event subscription
type State struct {
	Required bool   `json:"required"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
	Status   string `json:"status"`

	subscriptionId string
}

const (
	statusActive  = "active"
	statusMissing = "missing"
)
