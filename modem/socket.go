package modem

import (
	"context"
	"fmt"

	"i4.energy/across/cellular/at"
	"i4.energy/across/cellular/mux"
)

// OpenSocket reserves a connect ID for a new logical connection. It fails
// with ErrResourceExhausted when every ID is in use.
func (m *Modem) OpenSocket() (*mux.Handle, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	h, err := m.sockets.Acquire()
	if err != nil {
		return nil, err
	}
	m.logger.Debug("Socket opened", "id", h.ID())
	return h, nil
}

// CloseSocket closes the connection on the device and releases its ID. The
// ID is released even if the device rejects the close.
func (m *Modem) CloseSocket(ctx context.Context, h *mux.Handle) error {
	id := h.ID()
	if id == mux.NoID {
		return nil
	}
	defer h.Close()

	if _, err := m.expectOK(ctx, at.CloseSocket(id), m.config.atTimeout); err != nil {
		return fmt.Errorf("close socket %d: %w", id, err)
	}
	return nil
}

// Sockets returns the number of connect IDs in use and the pool capacity.
func (m *Modem) Sockets() (inUse, capacity int) {
	return m.sockets.InUse(), m.sockets.Cap()
}
