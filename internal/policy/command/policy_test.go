package command

import (
	"testing"

	"github.com/Cyclone1070/gatekeep/internal/gateerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	p := New(nil)

	tests := []struct {
		name    string
		command string
		args    []string
		valid   bool
	}{
		{"allowed plain", "go", []string{"test", "./..."}, true},
		{"allowed absolute", "/usr/bin/git", []string{"status"}, true},
		{"gradle wrapper", "./gradlew", []string{"build"}, true},
		{"not allow-listed", "rm", []string{"file.txt"}, false},
		{"not allow-listed no args", "curl", nil, false},
		{"relative path to allowed name", "../bin/git", []string{"status"}, false},
		{"unclean absolute path", "/usr/bin/../bin/git", nil, false},
		{"empty", "", nil, false},
		{"meta in command", "ls;rm", nil, false},
		{"pipe arg", "cat", []string{"a.txt|sh"}, false},
		{"subshell arg", "echo", []string{"$(id)"}, false},
		{"redirect arg", "echo", []string{"x", ">", "/etc/passwd"}, false},
		{"backtick arg", "echo", []string{"`id`"}, false},
		{"newline arg", "grep", []string{"a\nb"}, false},
		{"and arg", "make", []string{"all", "&&", "reboot"}, false},
		{"git upload-pack", "git", []string{"clone", "--upload-pack=touch /tmp/x", "repo"}, false},
		{"git ssh command", "git", []string{"-c", "core.sshCommand=evil", "fetch"}, false},
		{"git plain config ok", "git", []string{"-c", "user.name=x", "commit"}, true},
		{"find exec", "find", []string{".", "-name", "*.go", "-exec", "rm", "{}"}, false},
		{"find delete", "find", []string{".", "-delete"}, false},
		{"find ok", "find", []string{".", "-name", "*.go"}, true},
		{"node eval", "node", []string{"-e", "process.exit(1)"}, false},
		{"node eval eq", "node", []string{"--eval=1"}, false},
		{"python script", "python3", []string{"script.py"}, true},
		{"python inline", "python", []string{"-c", "import os"}, false},
		{"node clustered print eval", "node", []string{"-pe", "require('child_process').execSync('id').toString()"}, false},
		{"node clustered eval", "node", []string{"-ie", "1"}, false},
		{"node preload module", "node", []string{"--require", "./evil.js", "app.js"}, false},
		{"node import hook", "node", []string{"--import=./evil.mjs", "app.js"}, false},
		{"node script", "node", []string{"--enable-source-maps", "app.js"}, true},
		{"python clustered inline", "python3", []string{"-Ic", "__import__('os').system('id')"}, false},
		{"python attached inline", "python3", []string{"-cprint(1)"}, false},
		{"python module", "python3", []string{"-m", "pytest", "-q"}, true},
		{"python warning filter", "python3", []string{"-Wonce", "script.py"}, true},
		{"git alias", "git", []string{"-c", "alias.x=!id", "x"}, false},
		{"git attached alias", "git", []string{"-calias.x=!id", "x"}, false},
		{"git external diff", "git", []string{"-c", "diff.external=/tmp/evil", "diff"}, false},
		{"git filter driver", "git", []string{"-c", "filter.lfs.smudge=evil", "checkout", "."}, false},
		{"git protocol allow", "git", []string{"-c", "protocol.ext.allow=always", "fetch"}, false},
		{"git proxy", "git", []string{"-c", "core.gitProxy=evil", "fetch"}, false},
		{"git persistent alias", "git", []string{"config", "alias.x", "!id"}, false},
		{"npm exec", "npm", []string{"exec", "cowsay"}, false},
		{"npm test", "npm", []string{"test"}, true},
		{"global rf", "git", []string{"clean", "-rf"}, false},
		{"global combo", "git", []string{"rm", "--force", "-r", "."}, false},
		{"force alone", "git", []string{"push", "--force"}, true},
		{"no preserve root", "ls", []string{"--no-preserve-root"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.Validate(tt.command, tt.args)
			assert.Equal(t, tt.valid, res.Valid, res.Reason)
			if !tt.valid {
				assert.NotEmpty(t, res.Reason)
			}
		})
	}
}

func TestValidate_NotAllowListedIgnoresArgs(t *testing.T) {
	p := New(nil)
	for _, args := range [][]string{nil, {}, {"harmless"}, {"-rf", "/"}} {
		assert.False(t, p.Validate("rm", args).Valid)
	}
}

func TestCheck_ReturnsCommandBlocked(t *testing.T) {
	err := New(nil).Check("curl", []string{"http://x"})
	require.Error(t, err)
	assert.Equal(t, gateerr.KindCommandBlocked, gateerr.KindOf(err))

	assert.NoError(t, New(nil).Check("echo", []string{"hi"}))
}

func TestParseRules_MergesOverDefaults(t *testing.T) {
	rules, err := ParseRules([]byte(`
allow: [terraform]
remove: [python]
deny:
  terraform:
    exact: [destroy]
  git:
    prefix: [--mirror]
global:
  regex: ['^--token=']
`))
	require.NoError(t, err)
	p := New(rules)

	assert.True(t, p.Validate("terraform", []string{"plan"}).Valid)
	assert.False(t, p.Validate("terraform", []string{"destroy"}).Valid)
	assert.False(t, p.Validate("python", []string{"x.py"}).Valid)
	assert.False(t, p.Validate("git", []string{"push", "--mirror"}).Valid)
	assert.False(t, p.Validate("git", []string{"--upload-pack=x"}).Valid, "default git rules survive merge")
	assert.False(t, p.Validate("go", []string{"--token=abc"}).Valid)
}

func TestParseRules_Replace(t *testing.T) {
	rules, err := ParseRules([]byte("replace: true\nallow: [echo]\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"echo"}, rules.Allowed())
	assert.True(t, New(rules).Validate("echo", []string{"-rf"}).Valid)
}

func TestParseRules_BadRegex(t *testing.T) {
	_, err := ParseRules([]byte("global:\n  regex: ['(']\n"))
	assert.Error(t, err)
}

func TestSwap_IsAtomic(t *testing.T) {
	p := New(nil)
	rules, err := ParseRules([]byte("replace: true\nallow: [make]\n"))
	require.NoError(t, err)

	p.Swap(rules)

	assert.False(t, p.Validate("go", nil).Valid)
	assert.True(t, p.Validate("make", nil).Valid)
}
