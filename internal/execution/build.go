package execution

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Cyclone1070/gatekeep/internal/gateerr"
)

// marker files in detection order; the first present decides the build type.
var buildMarkers = []struct {
	pattern   string
	buildType string
}{
	{"pnpm-lock.yaml", BuildPNPM},
	{"yarn.lock", BuildYarn},
	{"package.json", BuildNPM},
	{"pom.xml", BuildMaven},
	{"build.gradle.kts", BuildGradle},
	{"build.gradle", BuildGradle},
	{"gradlew", BuildGradle},
	{"go.mod", BuildGo},
	{"Cargo.toml", BuildCargo},
	{"*.sln", BuildMSBuild},
	{"*.csproj", BuildMSBuild},
	{"GNUmakefile", BuildMake},
	{"Makefile", BuildMake},
	{"makefile", BuildMake},
}

// artifact globs per build type, relative to the project directory.
var artifactGlobs = map[string][]string{
	BuildNPM:     {"dist/*", "build/*"},
	BuildYarn:    {"dist/*", "build/*"},
	BuildPNPM:    {"dist/*", "build/*"},
	BuildMaven:   {"target/*.jar", "target/*.war"},
	BuildGradle:  {"build/libs/*.jar", "build/libs/*.war"},
	BuildMSBuild: {"bin/*/*/*.dll", "bin/*/*/*.exe", "bin/*/*.dll", "bin/*/*.exe"},
	BuildCargo:   {"target/debug/*", "target/release/*"},
}

// ExecuteBuild runs the project's build and parses its log for
// diagnostics, which are also published to the host when one is set.
// A failing build is a successful operation with Success false.
func (e *Engine) ExecuteBuild(ctx context.Context, req BuildRequest) (resp *BuildResponse, err error) {
	params := map[string]string{
		"projectPath": req.ProjectPath,
		"buildType":   req.BuildType,
		"target":      req.Target,
	}
	defer func() {
		if r := recover(); r != nil {
			e.record(ctx, "executeBuild", params, gateerr.Panic(r))
			panic(r)
		}
		if resp != nil {
			params["buildType"] = resp.BuildType
			params["exitCode"] = strconv.Itoa(resp.ExitCode)
			params["success"] = strconv.FormatBool(resp.Success)
		}
		e.record(ctx, "executeBuild", params, err)
	}()

	projectPath := req.ProjectPath
	if projectPath == "" {
		projectPath = "."
	}
	dir, rel, err := e.paths.Resolve(projectPath)
	if err != nil {
		return nil, err
	}

	buildType := strings.ToLower(req.BuildType)
	if buildType == "" || buildType == BuildAuto {
		if buildType = detectBuildType(dir); buildType == "" {
			return nil, gateerr.Wrap(gateerr.KindInvalidParams, "could not detect a build system in "+rel, ErrNoBuildDetected)
		}
	}
	argv, err := buildCommand(buildType, req.Target, dir)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	out, runErr := e.run(ctx, ExecuteRequest{
		Command:   argv[0],
		Args:      argv[1:],
		Cwd:       projectPath,
		TimeoutMs: req.TimeoutMs,
	})
	if out == nil {
		return nil, runErr
	}

	log := joinLog(out.Stdout, out.Stderr)
	resp = &BuildResponse{
		Success:    runErr == nil && out.State == StateExited && out.ExitCode == 0,
		BuildType:  buildType,
		Command:    argv,
		BuildLog:   log,
		ExitCode:   out.ExitCode,
		DurationMs: out.DurationMs,
		Truncated:  out.Truncated,
	}
	resp.Errors, resp.Warnings = parseDiagnostics(log, dir, e.paths.Root(), buildType)
	if resp.Success {
		resp.Artifacts = findArtifacts(dir, e.paths.Root(), artifactGlobs[buildType], started)
	}
	if e.diagnostics != nil {
		e.diagnostics.Publish(slices.Concat(resp.Errors, resp.Warnings))
	}

	e.logger.Info().
		Str("buildType", buildType).
		Bool("success", resp.Success).
		Int("errors", len(resp.Errors)).
		Int("warnings", len(resp.Warnings)).
		Msg("build finished")
	return resp, runErr
}

func detectBuildType(dir string) string {
	for _, m := range buildMarkers {
		matches, err := filepath.Glob(filepath.Join(dir, m.pattern))
		if err == nil && len(matches) > 0 {
			return m.buildType
		}
	}
	return ""
}

func buildCommand(buildType, target, dir string) ([]string, error) {
	or := func(def string) string {
		if target != "" {
			return target
		}
		return def
	}
	switch buildType {
	case BuildNPM:
		return []string{"npm", "run", or("build")}, nil
	case BuildPNPM:
		return []string{"pnpm", "run", or("build")}, nil
	case BuildYarn:
		return []string{"yarn", "run", or("build")}, nil
	case BuildMaven:
		return []string{"mvn", "-B", or("package")}, nil
	case BuildGradle:
		cmd := "gradle"
		if info, err := os.Stat(filepath.Join(dir, "gradlew")); err == nil && info.Mode().IsRegular() {
			cmd = "./gradlew"
		}
		return []string{cmd, or("build")}, nil
	case BuildMSBuild:
		argv := []string{"dotnet", "build"}
		if target != "" {
			argv = append(argv, "-t:"+target)
		}
		return argv, nil
	case BuildGo:
		return []string{"go", "build", or("./...")}, nil
	case BuildCargo:
		argv := []string{"cargo", "build"}
		if target != "" {
			argv = append(argv, "--bin", target)
		}
		return argv, nil
	case BuildMake:
		argv := []string{"make"}
		if target != "" {
			argv = append(argv, target)
		}
		return argv, nil
	}
	return nil, gateerr.Wrap(gateerr.KindInvalidParams, "unknown build type: "+buildType, ErrUnknownBuildType)
}

// findArtifacts lists regular files matching globs that were written
// during the build.
func findArtifacts(dir, root string, globs []string, since time.Time) []string {
	var out []string
	cutoff := since.Add(-time.Second)
	for _, g := range globs {
		matches, err := filepath.Glob(filepath.Join(dir, g))
		if err != nil {
			continue
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || !info.Mode().IsRegular() || info.ModTime().Before(cutoff) {
				continue
			}
			out = append(out, displayPath(m, dir, root))
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func joinLog(stdout, stderr string) string {
	switch {
	case stderr == "":
		return stdout
	case stdout == "":
		return stderr
	case strings.HasSuffix(stdout, "\n"):
		return stdout + stderr
	}
	return stdout + "\n" + stderr
}
