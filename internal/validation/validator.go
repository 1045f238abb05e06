package validation

import (
	"math"

	"github.com/maxiofs/guardctl/internal/catalog"
	"github.com/maxiofs/guardctl/internal/changeset"
	"github.com/maxiofs/guardctl/internal/value"
)

// Validator applies the catalog's rule table to requested edits
type Validator struct {
	catalog *catalog.Catalog
}

// NewValidator creates a validator over a resolved catalog
func NewValidator(c *catalog.Catalog) *Validator {
	return &Validator{catalog: c}
}

// Validate checks flag combinations first, then every edit in order. It
// stops at the first violation so the whole request is rejected before any
// write happens. When managedOnly is set every key must be managed.
func (v *Validator) Validate(reqs []changeset.Request, flags []string, managedOnly bool) error {
	if err := v.CheckFlags(flags); err != nil {
		return err
	}
	for _, req := range reqs {
		if managedOnly && !v.catalog.IsManaged(req.Key) {
			return &UnmanagedKeyError{Key: req.Key}
		}
		if err := v.Check(req.Key, req.Value); err != nil {
			return err
		}
	}
	return nil
}

// CheckFlags rejects any pair of present flags registered as mutually
// exclusive. Flag names are category-qualified (see catalog.ToggleFlagName).
func (v *Validator) CheckFlags(flags []string) error {
	present := make(map[string]bool, len(flags))
	for _, f := range flags {
		present[f] = true
	}
	for _, f := range flags {
		rule, ok := v.catalog.Rule(f)
		if !ok || rule.Kind != catalog.RuleMutualExclusion {
			continue
		}
		if present[rule.Partner] {
			return &ConflictingFlagsError{FlagA: bareFlag(f), FlagB: bareFlag(rule.Partner)}
		}
	}
	return nil
}

// Check validates a single key/value pair. Keys without a rule accept any
// value.
func (v *Validator) Check(key string, val value.Value) error {
	rule, ok := v.catalog.Rule(key)
	if !ok {
		return nil
	}

	switch rule.Kind {
	case catalog.RuleRange:
		if !val.IsNumeric() && !val.IsBool() {
			return &OutOfRangeError{Key: key, Min: rule.Min, Max: rule.Max, Got: val.String()}
		}
		f := val.AsFloat()
		if f < float64(rule.Min) || f > float64(rule.Max) {
			return &OutOfRangeError{Key: key, Min: rule.Min, Max: rule.Max, Got: val.String()}
		}
	case catalog.RuleEnum:
		if !inSet(val, rule.Allowed) {
			return &NotInAllowedSetError{Key: key, Allowed: rule.Allowed, Got: val.String()}
		}
	case catalog.RuleBinaryToggle:
		if val.IsBool() {
			return nil
		}
		if !val.IsNumeric() {
			return &InvalidBoolTokenError{Key: key, Got: val.String()}
		}
		if f := val.AsFloat(); f != 0 && f != 1 {
			return &InvalidBoolTokenError{Key: key, Got: val.String()}
		}
	}
	return nil
}

func inSet(val value.Value, allowed []int64) bool {
	if !val.IsNumeric() {
		return false
	}
	f := val.AsFloat()
	if f != math.Trunc(f) {
		return false
	}
	for _, a := range allowed {
		if int64(f) == a {
			return true
		}
	}
	return false
}

func bareFlag(qualified string) string {
	for i := len(qualified) - 1; i >= 0; i-- {
		if qualified[i] == ':' {
			return qualified[i+1:]
		}
	}
	return qualified
}
