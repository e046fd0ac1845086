package config

// Overlay carries command-line flag values over a loaded Config: any field
// left at its zero value is ignored, any non-zero field replaces the
// loaded one. Grounded on ModifyConfig.ModifyConfig, which applies the
// same field-by-field "non-zero wins" rule.
type Overlay struct {
	LogFile         string
	Listen          string
	ListenWorkers   int
	KeyStorePath    string
	Entity          string
	ContestId       string
	ServerAddr      string
	ServerPSK       string
	DiagnosticsAddr string
}

// Apply layers non-zero Overlay fields onto cfg and returns the result.
func (o Overlay) Apply(cfg Config) Config {
	if o.LogFile != "" {
		cfg.LogFile = o.LogFile
	}
	if o.Listen != "" {
		cfg.Listen = o.Listen
	}
	if o.ListenWorkers != 0 {
		cfg.ListenWorkers = o.ListenWorkers
	}
	if o.KeyStorePath != "" {
		cfg.KeyStorePath = o.KeyStorePath
	}
	if o.Entity != "" {
		cfg.Entity = o.Entity
	}
	if o.ContestId != "" {
		cfg.ContestId = o.ContestId
	}
	if o.ServerAddr != "" {
		cfg.ServerAddr = o.ServerAddr
	}
	if o.ServerPSK != "" {
		cfg.ServerPSK = o.ServerPSK
	}
	if o.DiagnosticsAddr != "" {
		cfg.DiagnosticsAddr = o.DiagnosticsAddr
	}
	return cfg
}
