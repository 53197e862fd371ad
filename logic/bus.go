package logic

// DecisionListener receives every dispatched decision.
type DecisionListener func(DecisionPayload)

// SubscriptionID is returned by Subscribe and used to unsubscribe.
type SubscriptionID uint64

type subscription struct {
	id SubscriptionID
	fn DecisionListener
}

// DecisionBus fans a payload out to subscribers synchronously, in
// registration order.
type DecisionBus struct {
	subs   []subscription
	nextID SubscriptionID
}

func NewDecisionBus() *DecisionBus {
	return &DecisionBus{}
}

func (b *DecisionBus) Subscribe(fn DecisionListener) SubscriptionID {
	if fn == nil {
		return 0
	}
	b.nextID++
	b.subs = append(b.subs, subscription{id: b.nextID, fn: fn})
	return b.nextID
}

func (b *DecisionBus) Unsubscribe(id SubscriptionID) bool {
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Publish delivers p once to each listener registered at call time.
// Listeners added or removed during delivery take effect on the next publish.
func (b *DecisionBus) Publish(p DecisionPayload) int {
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	for _, s := range subs {
		s.fn(p)
	}
	return len(subs)
}

func (b *DecisionBus) Len() int {
	return len(b.subs)
}
