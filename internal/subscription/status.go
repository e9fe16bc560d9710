package subscription

import (
	"github.com/streamkit/kickhooks"
)

// reconcileSubscriptionStatus compares the set of extant event subscriptions as
// returned by the Kick API against the set of required subscriptions, resolving
// the status of each required subscription and listing any extra ones as ancillary
func reconcileSubscriptionStatus(subscriptions []apiSubscription, requiredSubscriptions []kickhooks.RequiredEventSubscription) *Status {
	subscriptionStates := make([]State, 0, len(requiredSubscriptions))

	// Ignore any subscriptions that aren't webhook deliveries
	unexamined := make([]apiSubscription, 0, len(subscriptions))
	for _, subscription := range subscriptions {
		if subscription.Method == "webhook" {
			unexamined = append(unexamined, subscription)
		}
	}

	// First check each required subscription against the extant set to see whether
	// a registration with the desired event name and version exists
	for _, required := range requiredSubscriptions {
		foundAtIndex := -1
		for i := range unexamined {
			if unexamined[i].Event != required.Name {
				continue
			}
			if unexamined[i].Version != required.Version {
				continue
			}
			foundAtIndex = i
			break
		}

		status := statusMissing
		subscriptionId := ""
		if foundAtIndex >= 0 {
			status = statusActive
			subscriptionId = unexamined[foundAtIndex].Id
			unexamined = append(unexamined[:foundAtIndex], unexamined[foundAtIndex+1:]...)
		}
		subscriptionStates = append(subscriptionStates, State{
			Required:       true,
			Name:           required.Name,
			Version:        required.Version,
			Status:         status,
			subscriptionId: subscriptionId,
		})
	}

	// Any other webhook subscriptions registered by our app are listed as
	// ancillary: not required, but extant
	for _, subscription := range unexamined {
		subscriptionStates = append(subscriptionStates, State{
			Required:       false,
			Name:           subscription.Event,
			Version:        subscription.Version,
			Status:         statusActive,
			subscriptionId: subscription.Id,
		})
	}

	// For full backend functionality, every required subscription must exist
	ok := true
	for _, state := range subscriptionStates {
		if state.Required && state.Status != statusActive {
			ok = false
			break
		}
	}

	return &Status{
		Ok:            ok,
		Subscriptions: subscriptionStates,
	}
}
