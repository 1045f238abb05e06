package catalog

import "github.com/maxiofs/guardctl/internal/value"

// Version identifies the managed key allow-list. Bump it whenever a key is
// added to or removed from managedOptions.
const Version = 3

// Category groups settings by key-name patterns
type Category struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Prefixes    []string `json:"prefixes"`
	Substrings  []string `json:"substrings,omitempty"`
}

// RuleKind tags the variant held by a Rule
type RuleKind string

const (
	RuleNone            RuleKind = ""
	RuleRange           RuleKind = "range"
	RuleEnum            RuleKind = "enum"
	RuleBinaryToggle    RuleKind = "binary_toggle"
	RuleMutualExclusion RuleKind = "mutual_exclusion"
)

// Rule is a per-key (or per-flag, for mutual exclusion) validation rule.
// Only the fields of the tagged variant are meaningful.
type Rule struct {
	Kind RuleKind

	// Range
	Min int64
	Max int64

	// Enum
	Allowed []int64

	// MutualExclusion
	Partner string
}

// Range builds an inclusive numeric range rule
func Range(min, max int64) Rule { return Rule{Kind: RuleRange, Min: min, Max: max} }

// Enum builds a discrete allowed-set rule
func Enum(allowed ...int64) Rule { return Rule{Kind: RuleEnum, Allowed: allowed} }

// BinaryToggle builds a 0-or-1 rule
func BinaryToggle() Rule { return Rule{Kind: RuleBinaryToggle} }

// Exclusive builds a rule stating the flag cannot be combined with partner
func Exclusive(partner string) Rule { return Rule{Kind: RuleMutualExclusion, Partner: partner} }

// Option describes one managed key and how the configure command exposes it.
type Option struct {
	Key      string
	Category string
	Type     value.Hint
	Rule     Rule
	Flag     string
	Usage    string

	// Toggle options are driven by a pair of boolean flags instead of Flag.
	EnableFlag  string
	DisableFlag string
}

// IsToggle reports whether the option is set through an enable/disable pair
func (o Option) IsToggle() bool { return o.EnableFlag != "" && o.DisableFlag != "" }
