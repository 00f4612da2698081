package link

import "fmt"

// State is the lifecycle state of a Client.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Events receives connection lifecycle signals. Calls are made from the
// client's network goroutine (or from Send's caller for write errors), never
// from the dispatch loop.
type Events interface {
	OnConnected()
	OnError(reason string)
	OnConnectionClosed()
}

// StateObserver may be implemented by an Events value to see every state
// transition. It is called with the client's lock held and must not call back
// into the Client.
type StateObserver interface {
	OnStateChange(State)
}

// Sink receives decoded payloads in wire order.
type Sink interface {
	Push(payloads ...string)
}

type noopEvents struct{}

func (noopEvents) OnConnected()        {}
func (noopEvents) OnError(string)      {}
func (noopEvents) OnConnectionClosed() {}

// MultiEvents forwards every signal to each member in order.
type MultiEvents []Events

func (m MultiEvents) OnConnected() {
	for _, e := range m {
		e.OnConnected()
	}
}

func (m MultiEvents) OnError(reason string) {
	for _, e := range m {
		e.OnError(reason)
	}
}

func (m MultiEvents) OnConnectionClosed() {
	for _, e := range m {
		e.OnConnectionClosed()
	}
}
