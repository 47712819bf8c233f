// Package codeset validates (payer, program, procedure, modifier)
// combinations against the state's published catalog. An unknown
// combination is always rejected - a cache miss never passes silently.
package codeset

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/KaripeHS/serenity-sub009/internal/domain"
	pkgerrors "github.com/KaripeHS/serenity-sub009/pkg/errors"
)

// maxSuggestions caps the helper list attached to unknown-combination
// errors. Fuzzy-helpful, not exhaustive.
const maxSuggestions = 5

// Validator caches the catalog and answers membership and modifier checks.
type Validator struct {
	loader Loader
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[Key]Entry
	loaded  bool
}

// Option configures the Validator.
type Option func(*Validator)

func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) { v.logger = logger }
}

// NewValidator creates a Validator over the given loader. The catalog is
// loaded on first use, not at construction.
func NewValidator(loader Loader, opts ...Option) (*Validator, error) {
	if loader == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "code-set loader is required")
	}
	v := &Validator{loader: loader, logger: slog.Default()}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Validate checks a combination against the catalog. serviceDate gates the
// entry's effective window.
func (v *Validator) Validate(ctx context.Context, payer, program, procedure string, modifiers []string, serviceDate time.Time) (domain.ValidationResult, error) {
	var result domain.ValidationResult

	if err := v.ensureLoaded(ctx); err != nil {
		return result, err
	}

	key := NormalizeKey(payer, program, procedure)
	v.mu.RLock()
	entry, ok := v.entries[key]
	v.mu.RUnlock()

	if !ok {
		msg := fmt.Sprintf("no valid combination for payer %s, program %s, procedure %s", key.Payer, key.Program, key.ProcedureCode)
		if suggestions := v.suggestions(key); len(suggestions) > 0 {
			msg += "; valid procedures for this payer/program: " + strings.Join(suggestions, ", ")
		}
		result.AddError("CODESET_UNKNOWN_COMBINATION", msg, "serviceCode")
		return result, nil
	}

	if !entry.EffectiveOn(serviceDate) {
		result.AddError("CODESET_OUTSIDE_EFFECTIVE_WINDOW",
			fmt.Sprintf("procedure %s is not effective on %s", key.ProcedureCode, serviceDate.Format("2006-01-02")),
			"serviceDate")
	}

	allowed := make(map[string]bool, len(entry.ValidModifiers))
	for _, m := range entry.ValidModifiers {
		allowed[normalize(m)] = true
	}
	for _, m := range modifiers {
		norm := normalize(m)
		if norm == "" {
			continue
		}
		if !allowed[norm] {
			result.AddError("CODESET_INVALID_MODIFIER",
				fmt.Sprintf("modifier %s is not valid for %s; valid modifiers: %s", norm, key.ProcedureCode, strings.Join(entry.ValidModifiers, ", ")),
				"modifiers")
		}
	}
	if len(modifiers) == 0 && len(entry.ValidModifiers) > 0 {
		result.AddWarning("CODESET_NO_MODIFIERS",
			fmt.Sprintf("procedure %s is usually billed with a modifier (%s)", key.ProcedureCode, strings.Join(entry.ValidModifiers, ", ")),
			"modifiers")
	}

	if entry.RequiresAuthorization {
		result.AddWarning("CODESET_AUTHORIZATION_REQUIRED",
			fmt.Sprintf("procedure %s requires a payer authorization on file", key.ProcedureCode),
			"authorizationNumber")
	}

	return result, nil
}

// Lookup returns the cached entry for a combination, if present.
func (v *Validator) Lookup(ctx context.Context, payer, program, procedure string) (Entry, bool, error) {
	if err := v.ensureLoaded(ctx); err != nil {
		return Entry{}, false, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	entry, ok := v.entries[NormalizeKey(payer, program, procedure)]
	return entry, ok, nil
}

// ClearCache drops the catalog; the next Validate reloads it.
func (v *Validator) ClearCache() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.entries = nil
	v.loaded = false
}

func (v *Validator) ensureLoaded(ctx context.Context) error {
	v.mu.RLock()
	loaded := v.loaded
	v.mu.RUnlock()
	if loaded {
		return nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.loaded {
		return nil
	}
	entries, err := v.loader.LoadAll(ctx)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeInternal, "load code-set catalog")
	}
	v.entries = make(map[Key]Entry, len(entries))
	for _, e := range entries {
		v.entries[e.key()] = e
	}
	v.loaded = true
	v.logger.InfoContext(ctx, "code-set catalog loaded", "entries", len(entries))
	return nil
}

// suggestions lists other procedures valid for the same payer/program,
// sorted for determinism and capped. Caller holds no lock.
func (v *Validator) suggestions(key Key) []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var out []string
	for k := range v.entries {
		if k.Payer == key.Payer && k.Program == key.Program {
			out = append(out, k.ProcedureCode)
		}
	}
	sort.Strings(out)
	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out
}
