// Package command decides which external commands the gateway may spawn.
package command

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/Cyclone1070/gatekeep/internal/gateerr"
	"github.com/Cyclone1070/gatekeep/internal/policy"
)

// shellMeta are rejected anywhere in the command or its arguments.
// Execution never goes through a shell, so these can only be injection attempts.
var shellMeta = []string{";", "|", "&", "`", "$(", ">", "<", "\n", "\r"}

// Policy validates commands against the active rule set. The rule set can be
// swapped at runtime; each Validate call sees one consistent set.
type Policy struct {
	rules atomic.Pointer[Rules]
}

// New creates a Policy with the given rules, or the built-in rules when nil.
func New(rules *Rules) *Policy {
	if rules == nil {
		rules = DefaultRules()
	}
	p := &Policy{}
	p.rules.Store(rules)
	return p
}

// Swap installs a new rule set.
func (p *Policy) Swap(rules *Rules) {
	if rules == nil {
		panic("rules is required")
	}
	p.rules.Store(rules)
}

// Rules returns the active rule set.
func (p *Policy) Rules() *Rules {
	return p.rules.Load()
}

// Root extracts the name the allow-list is keyed on.
// e.g., "/usr/bin/git" -> "git", "./gradlew" -> "./gradlew"
func Root(command string) string {
	if strings.HasPrefix(command, "./") && !strings.Contains(command[2:], "/") {
		return command
	}
	return filepath.Base(command)
}

// Check returns a CommandBlocked error when the invocation is not allowed.
func (p *Policy) Check(command string, args []string) error {
	res := p.Validate(command, args)
	if !res.Valid {
		return gateerr.New(gateerr.KindCommandBlocked, res.Reason)
	}
	return nil
}

// Validate reports whether command may run with args.
func (p *Policy) Validate(command string, args []string) policy.ValidationResult {
	rules := p.rules.Load()

	if strings.TrimSpace(command) == "" {
		return policy.Deny("command is empty")
	}
	if meta := findMeta(command); meta != "" {
		return policy.Deny(fmt.Sprintf("command contains shell metacharacter %q", meta))
	}

	root := Root(command)
	if _, ok := rules.allow[root]; !ok {
		return policy.Deny(fmt.Sprintf("command %q is not in the allow-list", root))
	}
	if strings.ContainsRune(command, filepath.Separator) && command != root {
		// Only absolute, already-clean paths to an allowed binary are accepted.
		if !filepath.IsAbs(command) || filepath.Clean(command) != command {
			return policy.Deny(fmt.Sprintf("command path %q must be absolute and clean", command))
		}
	}

	for _, arg := range args {
		if meta := findMeta(arg); meta != "" {
			return policy.Deny(fmt.Sprintf("argument %q contains shell metacharacter %q", arg, meta))
		}
	}

	if bad := rules.perCommand[root].match(args); bad != "" {
		return policy.Deny(fmt.Sprintf("argument %q is denied for %s", bad, root))
	}
	if bad := rules.global.match(args); bad != "" {
		return policy.Deny(fmt.Sprintf("argument %q is denied", bad))
	}
	return policy.Allow()
}

func findMeta(s string) string {
	for _, m := range shellMeta {
		if strings.Contains(s, m) {
			return m
		}
	}
	return ""
}
