package runmode

import "time"

// SetClock replaces the manager's clock.
func SetClock(m *Manager, now func() time.Time) { m.now = now }
