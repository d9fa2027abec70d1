package execution

import (
	"bufio"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/Cyclone1070/gatekeep/internal/host"
)

var (
	// main.go:12:5: undefined: x
	// src/a.c:3:1: warning: unused variable 'y' [-Wunused-variable]
	compilerLine = regexp.MustCompile(`^([^\s:(][^\s:(]*\.[A-Za-z0-9]+):(\d+)(?::(\d+))?:\s*(?:(fatal error|error|warning|note)(?:\[(\w+)\])?\s*:\s*)?(.+)$`)

	// Program.cs(10,5): error CS1002: ; expected [/src/App.csproj]
	// src/a.ts(3,7): error TS2322: Type 'string' is not assignable to type 'number'.
	parenLine = regexp.MustCompile(`^(.+?)\((\d+)(?:,(\d+))?\)\s*:\s*(error|warning)\s+([A-Za-z]+\d+)\s*:\s*(.+?)(?:\s+\[[^\]]+\])?$`)

	// src/a.ts:3:7 - error TS2322: Type 'string' is not assignable to type 'number'.
	tscPrettyLine = regexp.MustCompile(`^(.+?):(\d+):(\d+) - (error|warning) (TS\d+): (.+)$`)

	// [ERROR] /src/main/java/App.java:[10,5] cannot find symbol
	mavenLine = regexp.MustCompile(`^\[(ERROR|WARNING)\]\s+(.+?):\[(\d+),(\d+)\]\s+(.+)$`)

	// error[E0425]: cannot find value `x` in this scope
	//  --> src/main.rs:2:5
	rustHeader   = regexp.MustCompile(`^(error|warning)(?:\[(\w+)\])?: (.+)$`)
	rustLocation = regexp.MustCompile(`^\s*--> (.+):(\d+):(\d+)$`)
)

// parseDiagnostics extracts compiler diagnostics from a build log. Relative
// file names are taken relative to dir and reported relative to root when
// they fall inside it.
func parseDiagnostics(log, dir, root, source string) (errs, warns []host.Diagnostic) {
	var pending *host.Diagnostic
	seen := make(map[host.Diagnostic]struct{})

	add := func(d host.Diagnostic) {
		d.File = displayPath(d.File, dir, root)
		d.Source = source
		if _, dup := seen[d]; dup {
			return
		}
		seen[d] = struct{}{}
		switch d.Severity {
		case host.SeverityError:
			errs = append(errs, d)
		case host.SeverityWarning:
			warns = append(warns, d)
		}
	}

	sc := bufio.NewScanner(strings.NewReader(log))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")

		if pending != nil {
			if m := rustLocation.FindStringSubmatch(line); m != nil {
				pending.File = m[1]
				pending.Range = point(m[2], m[3])
				add(*pending)
				pending = nil
				continue
			}
		}
		if m := rustHeader.FindStringSubmatch(line); m != nil {
			pending = &host.Diagnostic{Severity: severity(m[1]), Code: m[2], Message: m[3]}
			continue
		}

		if m := mavenLine.FindStringSubmatch(line); m != nil {
			add(host.Diagnostic{File: m[2], Range: point(m[3], m[4]), Severity: severity(m[1]), Message: m[5]})
			continue
		}
		if m := tscPrettyLine.FindStringSubmatch(line); m != nil {
			add(host.Diagnostic{File: m[1], Range: point(m[2], m[3]), Severity: severity(m[4]), Code: m[5], Message: m[6]})
			continue
		}
		if m := parenLine.FindStringSubmatch(line); m != nil {
			add(host.Diagnostic{File: m[1], Range: point(m[2], m[3]), Severity: severity(m[4]), Code: m[5], Message: m[6]})
			continue
		}
		if m := compilerLine.FindStringSubmatch(line); m != nil {
			sev := host.SeverityError
			if m[4] != "" {
				sev = severity(m[4])
			}
			add(host.Diagnostic{File: m[1], Range: point(m[2], m[3]), Severity: sev, Code: m[5], Message: m[6]})
		}
	}
	return errs, warns
}

func severity(s string) string {
	switch strings.ToLower(s) {
	case "warning":
		return host.SeverityWarning
	case "note":
		return host.SeverityInfo
	}
	return host.SeverityError
}

// point is a zero-width range at line:col. A missing column means column 1.
func point(line, col string) host.Range {
	l, _ := strconv.Atoi(line)
	c, err := strconv.Atoi(col)
	if err != nil || c < 1 {
		c = 1
	}
	p := host.Position{Line: l, Column: c}
	return host.Range{Start: p, End: p}
}

func displayPath(file, dir, root string) string {
	abs := file
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(dir, file)
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.Clean(abs)
	}
	return filepath.ToSlash(rel)
}
