package manifest

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// schemaSource constrains a manifest after defaults are filled in. Field
// names follow the json tags of Manifest.
const schemaSource = `
#Duration: =~"^([0-9]+(\\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$"

#Manifest: {
	runtime: {
		"initial-heap":   int & >0
		"growth-factor":  number & >=1
		"max-call-depth": int & >0
		"step-limit":     int & >=0
		"stress-gc":      bool
		modules: [...("prelude" | "io" | "string" | "sys")]
	}
	store: {
		path?: string
	}
	log: {
		verbosity: int & >=-5 & <=2
		path?:     string
	}
	server: {
		addr:             string & != ""
		"handle-ttl":     #Duration
		"sweep-interval": #Duration
	}
}
`

// CUE values are not safe for concurrent use.
var (
	schemaMu       sync.Mutex
	manifestSchema cue.Value
)

func init() {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource)
	if err := schema.Err(); err != nil {
		panic(fmt.Sprintf("manifest: invalid schema: %v", err))
	}
	manifestSchema = schema.LookupPath(cue.ParsePath("#Manifest"))
}

// Validate checks the manifest against the schema.
func (m *Manifest) Validate() error {
	schemaMu.Lock()
	defer schemaMu.Unlock()

	val := manifestSchema.Context().Encode(m)
	if err := val.Err(); err != nil {
		return err
	}
	unified := manifestSchema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}
