package command

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ArgRule is a set of dangerous argument patterns.
type ArgRule struct {
	Exact  []string `yaml:"exact,omitempty"`
	Prefix []string `yaml:"prefix,omitempty"`
	Regex  []string `yaml:"regex,omitempty"`
	// Combos deny an invocation when every argument in one combo is present.
	Combos [][]string `yaml:"combos,omitempty"`
}

// RulesFile is the YAML shape of a rules override file.
type RulesFile struct {
	// Replace discards the built-in rules instead of merging into them.
	Replace bool               `yaml:"replace"`
	Allow   []string           `yaml:"allow"`
	Remove  []string           `yaml:"remove"`
	Deny    map[string]ArgRule `yaml:"deny"`
	Global  ArgRule            `yaml:"global"`
}

var defaultAllow = []string{
	"go", "npm", "npx", "yarn", "pnpm", "node", "make", "mvn", "gradle", "./gradlew",
	"dotnet", "msbuild", "cargo", "python", "python3", "pytest", "git",
	"ls", "cat", "echo", "grep", "find", "wc", "head", "tail", "diff",
}

// Short flags cluster, so "-pe" evaluates code just like "-e".
var nodeDeny = ArgRule{
	Exact:  []string{"--eval", "--print"},
	Prefix: []string{"--eval=", "--print=", "--require", "--import", "--loader", "--experimental-loader"},
	Regex:  []string{`^-[A-Za-z]*[epr]`},
}

// Python options that take no argument may precede -c in one cluster, and
// the code may be attached ("-Ic" or "-cprint(1)").
var pythonDeny = ArgRule{
	Regex: []string{`^-[bBdEhiIOPqRsSuvVx]*c`},
}

// gitExecKeys are config keys whose values git runs as commands.
const gitExecKeys = `(core\.(sshcommand|pager|editor|fsmonitor|hookspath|gitproxy|askpass)` +
	`|alias\.|diff\.external|diff\..+\.(textconv|command)|filter\..+\.(clean|smudge|process)` +
	`|merge\..+\.driver|protocol\..+\.allow|credential\.helper|uploadpack\.` +
	`|remote\..+\.(uploadpack|receivepack)|sequence\.editor|gpg\.(.+\.)?program)`

func defaultFile() RulesFile {
	return RulesFile{
		Allow: defaultAllow,
		Deny: map[string]ArgRule{
			"git": {
				Prefix: []string{"--upload-pack", "--receive-pack", "--exec", "--config-env"},
				Regex:  []string{`(?i)^` + gitExecKeys, `(?i)^-c\s*` + gitExecKeys},
			},
			"find": {
				Exact: []string{"-exec", "-execdir", "-delete", "-ok", "-okdir", "-fprint", "-fprintf", "-fls"},
			},
			"node":    nodeDeny,
			"python":  pythonDeny,
			"python3": pythonDeny,
			"npm":     {Exact: []string{"exec", "x"}},
			"pnpm":    {Exact: []string{"dlx", "exec"}},
			"yarn":    {Exact: []string{"dlx", "exec"}},
		},
		Global: ArgRule{
			Exact:  []string{"-rf", "-fr", "-Rf", "-fR", "--no-preserve-root"},
			Combos: [][]string{{"--force", "-r"}, {"--force", "-R"}, {"--force", "--recursive"}, {"-f", "--recursive"}},
		},
	}
}

// matcher is a compiled ArgRule.
type matcher struct {
	exact    map[string]struct{}
	prefixes []string
	regexes  []*regexp.Regexp
	combos   [][]string
}

func compileRule(r ArgRule) (*matcher, error) {
	m := &matcher{exact: make(map[string]struct{}, len(r.Exact)), prefixes: r.Prefix, combos: r.Combos}
	for _, e := range r.Exact {
		m.exact[e] = struct{}{}
	}
	for _, expr := range r.Regex {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", expr, err)
		}
		m.regexes = append(m.regexes, re)
	}
	return m, nil
}

// match returns the offending argument, or "" if args pass.
func (m *matcher) match(args []string) string {
	if m == nil {
		return ""
	}
	for _, arg := range args {
		if _, ok := m.exact[arg]; ok {
			return arg
		}
		for _, p := range m.prefixes {
			if strings.HasPrefix(arg, p) {
				return arg
			}
		}
		for _, re := range m.regexes {
			if re.MatchString(arg) {
				return arg
			}
		}
	}
	for _, combo := range m.combos {
		if len(combo) > 0 && containsAll(args, combo) {
			return strings.Join(combo, " ")
		}
	}
	return ""
}

func containsAll(args, want []string) bool {
	for _, w := range want {
		if !slices.Contains(args, w) {
			return false
		}
	}
	return true
}

// Rules is an immutable compiled rule set.
type Rules struct {
	allow      map[string]struct{}
	perCommand map[string]*matcher
	global     *matcher
}

// Allowed returns the sorted allow-list.
func (r *Rules) Allowed() []string {
	out := make([]string, 0, len(r.allow))
	for name := range r.allow {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

func compile(f RulesFile) (*Rules, error) {
	r := &Rules{
		allow:      make(map[string]struct{}, len(f.Allow)),
		perCommand: make(map[string]*matcher, len(f.Deny)),
	}
	for _, name := range f.Allow {
		if name = strings.TrimSpace(name); name != "" {
			r.allow[name] = struct{}{}
		}
	}
	for _, name := range f.Remove {
		delete(r.allow, name)
	}
	for name, rule := range f.Deny {
		m, err := compileRule(rule)
		if err != nil {
			return nil, fmt.Errorf("deny.%s: %w", name, err)
		}
		r.perCommand[name] = m
	}
	g, err := compileRule(f.Global)
	if err != nil {
		return nil, fmt.Errorf("global: %w", err)
	}
	r.global = g
	return r, nil
}

// DefaultRules returns the built-in rule set.
func DefaultRules() *Rules {
	r, err := compile(defaultFile())
	if err != nil {
		panic(err) // built-in patterns are static
	}
	return r
}

// ParseRules decodes a YAML rules file and merges it over the built-in rules
// unless the file sets replace: true.
func ParseRules(data []byte) (*Rules, error) {
	var f RulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if f.Replace {
		return compile(f)
	}
	return compile(merge(defaultFile(), f))
}

// LoadRules reads and parses a rules file.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRules(data)
}

func merge(base, over RulesFile) RulesFile {
	out := RulesFile{
		Allow:  append(slices.Clone(base.Allow), over.Allow...),
		Remove: over.Remove,
		Deny:   make(map[string]ArgRule, len(base.Deny)+len(over.Deny)),
		Global: mergeRule(base.Global, over.Global),
	}
	for name, rule := range base.Deny {
		out.Deny[name] = rule
	}
	for name, rule := range over.Deny {
		out.Deny[name] = mergeRule(out.Deny[name], rule)
	}
	return out
}

func mergeRule(a, b ArgRule) ArgRule {
	return ArgRule{
		Exact:  append(slices.Clone(a.Exact), b.Exact...),
		Prefix: append(slices.Clone(a.Prefix), b.Prefix...),
		Regex:  append(slices.Clone(a.Regex), b.Regex...),
		Combos: append(slices.Clone(a.Combos), b.Combos...),
	}
}
