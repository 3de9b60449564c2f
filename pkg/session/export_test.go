package session

// ActiveLocks reports how many session lock entries are held.
func ActiveLocks(m *Manager) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
