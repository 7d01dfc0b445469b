/*
Package config loads runflow engine settings from YAML or JSON files.

# Raw Access

Config wraps a decoded document and extracts typed values with defaults,
so callers avoid type assertions and nil checks:

	cfg, err := config.FromFile("runflow.yaml")
	if err != nil {
	    log.Fatal(err)
	}
	pause := cfg.Section("engine").Duration("step_pause", 10*time.Millisecond)

Duration accepts strings ("250ms", "1h30m"), numbers (seconds) and
time.Duration values. Int rejects floats with a fractional part.

# Engine Settings

Settings is the typed view of the "engine" section:

	engine:
	  max_steps: 1000
	  step_pause: 10ms
	  pool_size: 64
	  condition_language: native   # or cel
	  truncate_status: false
	  store: sqlite                # or memory
	  sqlite_path: runs.db
	  log_level: info
	  log_format: json
	  metrics: true
	  tracing: true

Load reads and validates the file in one call:

	settings, err := config.Load("runflow.yaml")

An empty path reads the file named by $RUNFLOW_CONFIG and falls back to
Defaults when the variable is unset.

Missing keys take the values from Defaults. Validate joins every problem
into a single error.

# Thread Safety

Config is safe for concurrent read access as long as the underlying map
is not modified after creation.
*/
package config
