package repository

// MemoryOption applies a configuration option to the MemoryStore.
type MemoryOption func(*MemoryStore)

// WithCapacity bounds how many samples the memory store keeps.
func WithCapacity(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// SQLiteOption applies a configuration option to the SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithBusyTimeoutMs sets how long SQLite waits on a locked database.
func WithBusyTimeoutMs(ms int) SQLiteOption {
	return func(s *SQLiteStore) {
		if ms > 0 {
			s.busyTimeoutMs = ms
		}
	}
}
