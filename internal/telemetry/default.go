package telemetry

var defaultManager = NewManager()

// Default is the process-wide manager; callers that do not construct
// their own share it.
func Default() *Manager {
	return defaultManager
}

func InitDefault(enabled bool, endpoint string) {
	defaultManager.Initialize(Config{
		Enabled:  enabled,
		Endpoint: endpoint,
	})
}
