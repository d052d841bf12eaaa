package domain

// AudioConfig carries the constraints applied to a call before joining.
// Output is platform-managed; OutputEnabled is only a routing hint.
type AudioConfig struct {
	InputEnabled     bool
	OutputEnabled    bool
	NoiseSuppression bool
	EchoCancellation bool
}

func DefaultAudioConfig() AudioConfig {
	return AudioConfig{
		InputEnabled:     true,
		OutputEnabled:    true,
		NoiseSuppression: true,
		EchoCancellation: true,
	}
}
