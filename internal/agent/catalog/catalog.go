package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/graphdesk/server/internal/agent/model"
	errx "github.com/graphdesk/server/internal/core/error"
	"github.com/graphdesk/server/internal/store"
	logx "github.com/graphdesk/server/pkg/logger"
)

// conversationalIntents never trigger task execution. Anything outside this
// set is forced task-oriented no matter what the classifier claims.
var conversationalIntents = map[string]bool{
	"GREETING":        true,
	"GENERAL_INQUIRY": true,
	"THANKS":          true,
	"GOODBYE":         true,
	model.IntentUnknown: true,
}

// Catalog is the read-mostly snapshot of allowed intents and their required
// fields. Readers always observe a whole snapshot; Reload swaps the pointer
// atomically and keeps the last-good snapshot when the store is unreachable.
type Catalog struct {
	store store.EntityStore
	snap  atomic.Pointer[snapshot]
}

type snapshot struct {
	defs    map[string]model.IntentDefinition
	listing string
}

func New(s store.EntityStore) *Catalog {
	c := &Catalog{store: s}
	c.snap.Store(&snapshot{defs: map[string]model.IntentDefinition{}})
	return c
}

// Reload fetches all intent definitions and replaces the snapshot. On
// failure the previous snapshot stays in effect; the conversation loop is
// never blocked by a failed reload.
func (c *Catalog) Reload(ctx context.Context) error {
	defs, err := c.store.LoadIntents(ctx)
	if err != nil {
		logx.Error().Err(err).Msg("intent catalog reload failed, keeping last-good snapshot")
		return fmt.Errorf("%w: %v", errx.ErrCatalogLoad, err)
	}

	byName := make(map[string]model.IntentDefinition, len(defs))
	for _, d := range defs {
		byName[d.Name] = d
	}

	c.snap.Store(&snapshot{defs: byName, listing: describe(byName)})
	logx.Info().Int("intents", len(byName)).Msg("intent catalog reloaded")
	return nil
}

// Describe returns the compact "NAME (requires: f1, f2)" listing used to
// seed classifier prompts.
func (c *Catalog) Describe() string {
	return c.snap.Load().listing
}

// Lookup returns the definition for an intent name.
func (c *Catalog) Lookup(name string) (model.IntentDefinition, bool) {
	def, ok := c.snap.Load().defs[name]
	return def, ok
}

// Known reports whether the intent exists in the catalog or is the UNKNOWN
// sentinel.
func (c *Catalog) Known(name string) bool {
	if name == model.IntentUnknown {
		return true
	}
	_, ok := c.snap.Load().defs[name]
	return ok
}

// Conversational reports whether an intent belongs to the fixed non-task
// set.
func Conversational(intent string) bool {
	return conversationalIntents[intent]
}

func describe(defs map[string]model.IntentDefinition) string {
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		def := defs[name]
		b.WriteString(name)
		if len(def.RequiredFields) == 0 {
			b.WriteString(" (requires: nothing)")
		} else {
			b.WriteString(" (requires: ")
			b.WriteString(strings.Join(def.RequiredFields, ", "))
			b.WriteString(")")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
