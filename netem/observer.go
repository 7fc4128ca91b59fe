package netem

import "time"

// Observer receives channel events, typically to export metrics. Calls must
// not block. OnPending and OnConditions are made while the channel lock is
// held, so successive values arrive in the order the channel applied them;
// they must not call back into the channel. All other calls are made outside
// the lock.
type Observer interface {
	OnSend(channel string)
	OnDrop(channel string)
	OnDeliver(channel string, delay time.Duration)
	OnDiscard(channel string, n int)
	OnSinkFailure(channel string)
	OnPending(channel string, n int)
	OnConditions(channel string, c Conditions)
}

type nopObserver struct{}

func (nopObserver) OnSend(string)                   {}
func (nopObserver) OnDrop(string)                   {}
func (nopObserver) OnDeliver(string, time.Duration) {}
func (nopObserver) OnDiscard(string, int)           {}
func (nopObserver) OnSinkFailure(string)            {}
func (nopObserver) OnPending(string, int)           {}
func (nopObserver) OnConditions(string, Conditions) {}

// MultiObserver fans events out to every observer in order.
func MultiObserver(obs ...Observer) Observer {
	switch len(obs) {
	case 0:
		return nopObserver{}
	case 1:
		return obs[0]
	}
	return multiObserver(append([]Observer(nil), obs...))
}

type multiObserver []Observer

func (m multiObserver) OnSend(ch string) {
	for _, o := range m {
		o.OnSend(ch)
	}
}

func (m multiObserver) OnDrop(ch string) {
	for _, o := range m {
		o.OnDrop(ch)
	}
}

func (m multiObserver) OnDeliver(ch string, d time.Duration) {
	for _, o := range m {
		o.OnDeliver(ch, d)
	}
}

func (m multiObserver) OnDiscard(ch string, n int) {
	for _, o := range m {
		o.OnDiscard(ch, n)
	}
}

func (m multiObserver) OnSinkFailure(ch string) {
	for _, o := range m {
		o.OnSinkFailure(ch)
	}
}

func (m multiObserver) OnPending(ch string, n int) {
	for _, o := range m {
		o.OnPending(ch, n)
	}
}

func (m multiObserver) OnConditions(ch string, c Conditions) {
	for _, o := range m {
		o.OnConditions(ch, c)
	}
}
