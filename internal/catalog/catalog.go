package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/maxiofs/guardctl/internal/value"
)

var categories = []Category{
	{
		Name:        "brute-force",
		Description: "Login attempt limits and lockouts",
		Prefixes:    []string{"loginsec."},
		Substrings:  []string{"lockout"},
	},
	{
		Name:        "firewall",
		Description: "Request firewall and rate limiting",
		Prefixes:    []string{"firewall."},
		Substrings:  []string{"ratelimit"},
	},
	{
		Name:        "scan",
		Description: "Scheduled malware and integrity scans",
		Prefixes:    []string{"scan."},
	},
	{
		Name:        "alerts",
		Description: "Email alerting",
		Prefixes:    []string{"alert."},
	},
	{
		Name:        "two-factor",
		Description: "Two-factor authentication",
		Prefixes:    []string{"2fa."},
	},
}

var managedOptions = []Option{
	// Brute force protection
	{
		Key: "loginsec.enabled", Category: "brute-force", Type: value.HintBool,
		EnableFlag: "enable", DisableFlag: "disable",
		Usage: "brute force protection",
	},
	{
		Key: "loginsec.max_failures", Category: "brute-force", Type: value.HintInt,
		Rule: Range(2, 500), Flag: "max-login-failures",
		Usage: "failed logins before lockout",
	},
	{
		Key: "loginsec.max_forgot_passwd", Category: "brute-force", Type: value.HintInt,
		Rule: Range(1, 500), Flag: "max-forgot-password",
		Usage: "password reset attempts before lockout",
	},
	{
		Key: "loginsec.count_fail_mins", Category: "brute-force", Type: value.HintInt,
		Rule: Enum(5, 10, 30, 60, 120, 240, 360, 720, 1440), Flag: "count-failures-over-mins",
		Usage: "window in minutes over which failures are counted",
	},
	{
		Key: "loginsec.lockout_mins", Category: "brute-force", Type: value.HintInt,
		Rule: Enum(5, 10, 30, 60, 120, 240, 360, 720, 1440, 2880, 7200, 14400, 28800, 43200, 86400),
		Flag: "lockout-duration-mins", Usage: "lockout duration in minutes",
	},
	{
		Key: "loginsec.lock_invalid_users", Category: "brute-force", Type: value.HintInt,
		Rule: BinaryToggle(), Flag: "lock-invalid-users",
		Usage: "immediately lock out unknown usernames (0 or 1)",
	},
	{
		Key: "loginsec.block_admin_reg", Category: "brute-force", Type: value.HintInt,
		Rule: BinaryToggle(), Flag: "block-admin-registration",
		Usage: "block registrations of the admin username (0 or 1)",
	},
	{
		Key: "loginsec.mask_login_errors", Category: "brute-force", Type: value.HintInt,
		Rule: BinaryToggle(), Flag: "mask-login-errors",
		Usage: "hide which part of a login was wrong (0 or 1)",
	},

	// Firewall
	{
		Key: "firewall.enabled", Category: "firewall", Type: value.HintBool,
		EnableFlag: "enable", DisableFlag: "disable",
		Usage: "request firewall",
	},
	{
		Key: "firewall.learning_mode", Category: "firewall", Type: value.HintBool,
		EnableFlag: "learning", DisableFlag: "enforcing",
		Usage: "learning mode",
	},
	{
		Key: "firewall.ratelimit_max_requests", Category: "firewall", Type: value.HintInt,
		Rule: Enum(15, 30, 60, 120, 240, 480, 960, 1920), Flag: "max-requests-per-minute",
		Usage: "requests per minute before throttling",
	},
	{
		Key: "firewall.block_duration_secs", Category: "firewall", Type: value.HintInt,
		Rule: Enum(60, 300, 1800, 3600, 7200, 21600, 43200, 86400, 172800, 432000, 864000, 2592000),
		Flag: "block-duration-secs", Usage: "block duration in seconds",
	},
	{
		Key: "firewall.allowlisted_ips", Category: "firewall", Type: value.HintString,
		Flag: "allowlisted-ips", Usage: "comma separated IPs or CIDR ranges never blocked",
	},

	// Scans
	{
		Key: "scan.enabled", Category: "scan", Type: value.HintBool,
		EnableFlag: "enable", DisableFlag: "disable",
		Usage: "scheduled scans",
	},
	{
		Key: "scan.max_duration_secs", Category: "scan", Type: value.HintInt,
		Rule: Range(0, 86400), Flag: "max-duration-secs",
		Usage: "maximum scan duration in seconds (0 = unlimited)",
	},
	{
		Key: "scan.max_memory_mb", Category: "scan", Type: value.HintInt,
		Rule: Range(8, 4096), Flag: "max-memory-mb",
		Usage: "memory limit for scans in MB",
	},
	{
		Key: "scan.high_sensitivity", Category: "scan", Type: value.HintInt,
		Rule: BinaryToggle(), Flag: "high-sensitivity",
		Usage: "use high sensitivity signatures (0 or 1)",
	},
	{
		Key: "scan.check_malware", Category: "scan", Type: value.HintInt,
		Rule: BinaryToggle(), Flag: "check-malware",
		Usage: "scan files for malware signatures (0 or 1)",
	},

	// Alerts
	{
		Key: "alert.email", Category: "alerts", Type: value.HintString,
		Flag: "email", Usage: "alert recipient address",
	},
	{
		Key: "alert.on_block", Category: "alerts", Type: value.HintInt,
		Rule: BinaryToggle(), Flag: "on-block",
		Usage: "alert when an IP is blocked (0 or 1)",
	},
	{
		Key: "alert.on_admin_login", Category: "alerts", Type: value.HintInt,
		Rule: BinaryToggle(), Flag: "on-admin-login",
		Usage: "alert on administrator login (0 or 1)",
	},
	{
		Key: "alert.max_per_hour", Category: "alerts", Type: value.HintInt,
		Rule: Range(0, 1000), Flag: "max-per-hour",
		Usage: "maximum alert emails per hour (0 = unlimited)",
	},

	// Two-factor
	{
		Key: "2fa.grace_period_days", Category: "two-factor", Type: value.HintInt,
		Rule: Range(1, 99), Flag: "grace-period-days",
		Usage: "days a required user may log in before enrolling",
	},
	{
		Key: "2fa.remember_device", Category: "two-factor", Type: value.HintInt,
		Rule: BinaryToggle(), Flag: "remember-device",
		Usage: "allow remembering a device for 30 days (0 or 1)",
	},
	{
		Key: "2fa.required_roles", Category: "two-factor", Type: value.HintString,
		Flag: "required-roles", Usage: "comma separated roles that must use 2FA",
	},
}

// Catalog is the resolved view of categories, managed keys and rules.
// It is built once at startup and read-only afterwards.
type Catalog struct {
	categories map[string]Category
	options    map[string]Option
	rules      map[string]Rule
	ordered    []Option
	managed    []string
}

// Default returns the built-in catalog
func Default() *Catalog {
	c, err := New(categories, managedOptions)
	if err != nil {
		panic(err)
	}
	return c
}

// New builds a catalog, resolving the rule table from the option list.
func New(cats []Category, opts []Option) (*Catalog, error) {
	c := &Catalog{
		categories: make(map[string]Category, len(cats)),
		options:    make(map[string]Option, len(opts)),
		rules:      make(map[string]Rule),
	}
	for _, cat := range cats {
		if _, dup := c.categories[cat.Name]; dup {
			return nil, fmt.Errorf("duplicate category %q", cat.Name)
		}
		c.categories[cat.Name] = cat
	}
	for _, opt := range opts {
		if _, dup := c.options[opt.Key]; dup {
			return nil, fmt.Errorf("duplicate managed key %q", opt.Key)
		}
		if _, ok := c.categories[opt.Category]; !ok {
			return nil, fmt.Errorf("managed key %q references unknown category %q", opt.Key, opt.Category)
		}
		c.options[opt.Key] = opt
		c.ordered = append(c.ordered, opt)
		c.managed = append(c.managed, opt.Key)
		if opt.Rule.Kind != RuleNone {
			c.rules[opt.Key] = opt.Rule
		}
		if opt.IsToggle() {
			a, b := ToggleFlagName(opt.Category, opt.EnableFlag), ToggleFlagName(opt.Category, opt.DisableFlag)
			c.rules[a] = Exclusive(b)
			c.rules[b] = Exclusive(a)
		}
	}
	sort.Strings(c.managed)
	return c, nil
}

// ToggleFlagName qualifies a toggle flag with its category so that the
// rule table can hold "--enable" for several categories at once.
func ToggleFlagName(category, flag string) string {
	return category + ":" + flag
}

// ManagedKeys returns the sorted managed allow-list
func (c *Catalog) ManagedKeys() []string {
	out := make([]string, len(c.managed))
	copy(out, c.managed)
	return out
}

// IsManaged reports whether key is on the managed allow-list
func (c *Catalog) IsManaged(key string) bool {
	_, ok := c.options[key]
	return ok
}

// Option returns the managed option for key
func (c *Catalog) Option(key string) (Option, bool) {
	opt, ok := c.options[key]
	return opt, ok
}

// Rule returns the validation rule registered for a key or qualified flag
func (c *Catalog) Rule(name string) (Rule, bool) {
	r, ok := c.rules[name]
	return r, ok
}

// Category returns a category by name
func (c *Catalog) Category(name string) (Category, bool) {
	cat, ok := c.categories[name]
	return cat, ok
}

// Categories returns all categories sorted by name
func (c *Catalog) Categories() []Category {
	out := make([]Category, 0, len(c.categories))
	for _, cat := range c.categories {
		out = append(out, cat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// OptionsFor returns the managed options of a category in declaration order
func (c *Catalog) OptionsFor(category string) []Option {
	var out []Option
	for _, opt := range c.ordered {
		if opt.Category == category {
			out = append(out, opt)
		}
	}
	return out
}

// Matches reports whether key belongs to the category
func (cat Category) Matches(key string) bool {
	for _, p := range cat.Prefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	for _, s := range cat.Substrings {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

// CategoriesOf returns the names of every category a key belongs to
func (c *Catalog) CategoriesOf(key string) []string {
	var out []string
	for _, cat := range c.Categories() {
		if cat.Matches(key) {
			out = append(out, cat.Name)
		}
	}
	return out
}
