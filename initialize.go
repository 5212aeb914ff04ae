package perfscope

// Initialize applies a configuration to the process: it validates cfg,
// configures the library logger and sets the recording gate.
//
// Initialize may be called again, typically from tests, to switch
// configurations. On a validation error the gate and logger are left
// untouched.
func Initialize(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		GetLogger().Error("perfscope initialization failed", map[string]interface{}{
			"error":  err.Error(),
			"impact": "scope recording left unchanged",
		})
		return err
	}

	logger := GetLogger()
	if cfg.ServiceName != "" {
		logger.SetServiceName(cfg.ServiceName)
	}
	if cfg.Logging.Level != "" {
		logger.SetLevel(cfg.Logging.Level)
	}
	if cfg.Logging.Format != "" {
		logger.SetFormat(cfg.Logging.Format)
	}

	SetEnabled(cfg.Enabled)

	logger.Info("perfscope initialized", map[string]interface{}{
		"enabled":  cfg.Enabled,
		"exporter": cfg.Export.Exporter,
		"metrics":  cfg.Export.Metrics,
	})
	return nil
}
