package config

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// schemaSource constrains every key the runtime reads.
const schemaSource = `
#Config: {
	scheduler: {
		process_workers: int & >=1 & <=1024
		tracer_threads:  int & >=1 & <=256
		reductions:      int & >=1
		gc_threshold:    int & >=1
		sweep_interval:  int & >=0
	}
	log: {
		verbosity: int & >=-4 & <=4
		file?:     string
	}
}
`

var (
	schemaMu   sync.Mutex
	schemaOnce sync.Once
	cueCtx     *cue.Context
	schema     cue.Value
	schemaErr  error
)

func loadSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		cueCtx = cuecontext.New()
		schema = cueCtx.CompileString(schemaSource).LookupPath(cue.ParsePath("#Config"))
		schemaErr = schema.Err()
	})
	return cueCtx, schema, schemaErr
}

// Validate checks the configuration against the schema.
func (c *Config) Validate() error {
	ctx, s, err := loadSchema()
	if err != nil {
		return fmt.Errorf("config schema: %w", err)
	}

	// A cue.Context is not safe for concurrent use.
	schemaMu.Lock()
	defer schemaMu.Unlock()
	return s.Unify(ctx.Encode(c.document())).Validate(cue.Concrete(true))
}

// document mirrors the TOML layout so the schema sees the same key names.
func (c *Config) document() map[string]any {
	log := map[string]any{"verbosity": c.Log.Verbosity}
	if c.Log.File != "" {
		log["file"] = c.Log.File
	}
	return map[string]any{
		"scheduler": map[string]any{
			"process_workers": c.Scheduler.ProcessWorkers,
			"tracer_threads":  c.Scheduler.TracerThreads,
			"reductions":      c.Scheduler.Reductions,
			"gc_threshold":    c.Scheduler.GCThreshold,
			"sweep_interval":  int64(c.Scheduler.SweepInterval),
		},
		"log": log,
	}
}
