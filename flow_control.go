package mqttcore

import (
	"errors"
	"sync"
)

var ErrQuotaExceeded = errors.New("mqttcore: receive quota exceeded")

// FlowController enforces the v5 Receive Maximum: the number of QoS>0
// PUBLISH packets a peer may have outstanding (sent but not yet
// acknowledged) at once. v3.1.1 has no such property; a FlowController
// with the default maximum effectively disables the limit for it.
type FlowController struct {
	mu             sync.Mutex
	receiveMaximum uint16
	inFlight       uint16
}

// NewFlowController creates a flow controller with the given receive
// maximum; zero means "unlimited" (the MQTT spec's default).
func NewFlowController(receiveMaximum uint16) *FlowController {
	if receiveMaximum == 0 {
		receiveMaximum = 65535
	}
	return &FlowController{receiveMaximum: receiveMaximum}
}

func (f *FlowController) ReceiveMaximum() uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.receiveMaximum
}

func (f *FlowController) SetReceiveMaximum(maximum uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if maximum == 0 {
		maximum = 65535
	}
	f.receiveMaximum = maximum
}

func (f *FlowController) Available() uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight >= f.receiveMaximum {
		return 0
	}
	return f.receiveMaximum - f.inFlight
}

func (f *FlowController) InFlight() uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}

func (f *FlowController) CanSend() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight < f.receiveMaximum
}

// Acquire reserves one unit of send quota.
func (f *FlowController) Acquire() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight >= f.receiveMaximum {
		return ErrQuotaExceeded
	}
	f.inFlight++
	return nil
}

// TryAcquire is Acquire without an error return.
func (f *FlowController) TryAcquire() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight >= f.receiveMaximum {
		return false
	}
	f.inFlight++
	return true
}

// Release returns one unit of quota when a message is acknowledged.
func (f *FlowController) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight > 0 {
		f.inFlight--
	}
}

func (f *FlowController) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight = 0
}
