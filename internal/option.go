package internal

// Option adjusts the engine before Run wires its components.
type Option func(*application)

// application collects what the options supply; Run builds everything else
// from it.
type application struct {
	config *Config
}

// WithConfig supplies the validated configuration the engine runs with.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}
