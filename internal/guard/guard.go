package guard

import "context"

// Request is what guards inspect before a capability executes.
type Request struct {
	// Capability is the capability being dispatched.
	Capability string
	// Arguments are the validated arguments.
	Arguments map[string]any
	// Session is the conversation session.
	Session string
}

// Decision is the guard verdict.
type Decision struct {
	// Allowed indicates the call may proceed.
	Allowed bool
	// Reason explains the decision.
	Reason string
	// Source identifies the guard.
	Source string
}

// Guard checks whether a call may execute.
type Guard interface {
	// Name returns the guard identifier.
	Name() string
	// Check returns a decision for the given request.
	Check(ctx context.Context, req Request) (Decision, error)
}

// Chain runs guards sequentially until one denies.
type Chain []Guard

// Check executes all guards in order.
func (c Chain) Check(ctx context.Context, req Request) (Decision, error) {
	for _, item := range c {
		decision, err := item.Check(ctx, req)
		if err != nil {
			return Decision{Allowed: false, Reason: err.Error(), Source: item.Name()}, err
		}
		if !decision.Allowed {
			if decision.Source == "" {
				decision.Source = item.Name()
			}
			return decision, nil
		}
	}
	return Decision{Allowed: true, Reason: "allowed"}, nil
}
