package config

import "time"

// DefaultConfig returns the configuration used when no file sets a value.
func DefaultConfig() *ConsoleConfig {
	return &ConsoleConfig{
		API: APIConfig{
			BaseURL: "http://localhost:12345",
			Timeout: Duration{10 * time.Second},
		},
		Poll: PollConfig{
			Interval:     Duration{5 * time.Second},
			Concurrency:  4,
			StopWhenDone: false,
		},
		Display: DisplayConfig{
			Locale: "zh-CN",
		},
		Cache: CacheConfig{
			Enabled: true,
			MaxAge:  Duration{30 * 24 * time.Hour},
		},
	}
}
