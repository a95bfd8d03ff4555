package main

// crosscompile builds pocos-map for the platforms the dashboard is deployed
// on. The version comes from the commit count so binaries and the Server
// header agree. Builds run on a small worker pool.
//
//	go run ./scripts -out binaries
//	go run ./scripts -targets linux/amd64,linux/arm64

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

var outDir = flag.String("out", "binaries", "Output directory")
var targetList = flag.String("targets", "linux/amd64,linux/arm64,linux/arm,darwin/amd64,darwin/arm64,windows/amd64,freebsd/amd64", "Comma separated GOOS/GOARCH pairs")
var withDuckDB = flag.Bool("duckdb", false, "Link DuckDB into the Linux cgo builds")

type target struct{ OS, Arch string }

type result struct {
	target target
	path   string
	err    error
}

func parseTargets(s string) ([]target, error) {
	var out []target
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		osName, arch, ok := strings.Cut(item, "/")
		if !ok || osName == "" || arch == "" {
			return nil, fmt.Errorf("bad target %q, want GOOS/GOARCH", item)
		}
		out = append(out, target{osName, arch})
	}
	return out, nil
}

// supportsDuckDB mirrors the build constraint of the DuckDB driver file.
func supportsDuckDB(t target) bool {
	return t.OS == "linux" && (t.Arch == "amd64" || t.Arch == "arm64")
}

func binaryName(t target) string {
	name := "pocos-map"
	if t.OS == "windows" {
		name += ".exe"
	}
	return name
}

// buildArgs returns the go command line and the extra environment for t.
func buildArgs(t target, version, output string, duckdb bool) ([]string, []string) {
	args := []string{"build", "-trimpath", "-ldflags", fmt.Sprintf("-s -w -X 'main.CompileVersion=%s'", version)}
	env := []string{"GOOS=" + t.OS, "GOARCH=" + t.Arch, "CGO_ENABLED=0"}
	if duckdb && supportsDuckDB(t) {
		args = append(args, "-tags", "duckdb")
		env[2] = "CGO_ENABLED=1"
	}
	return append(args, "-o", output, "."), env
}

func gitVersion() string {
	count, err := exec.Command("git", "rev-list", "--count", "HEAD").Output()
	if err != nil {
		return "dev"
	}
	version := strings.TrimSpace(string(count))
	if status, err := exec.Command("git", "status", "--porcelain").Output(); err == nil && len(strings.TrimSpace(string(status))) > 0 {
		version += "-dirty"
	}
	return version
}

func main() {
	flag.Parse()
	targets, err := parseTargets(*targetList)
	if err != nil {
		log.Fatal(err)
	}
	version := gitVersion()
	root := filepath.Join(*outDir, version)
	log.Printf("Building pocos-map %s for %d targets", version, len(targets))

	jobs := make(chan target)
	results := make(chan result)
	workers := runtime.NumCPU()
	if workers > len(targets) {
		workers = len(targets)
	}
	for i := 0; i < workers; i++ {
		go func() {
			for t := range jobs {
				dir := filepath.Join(root, t.OS, t.Arch)
				if err := os.MkdirAll(dir, 0o755); err != nil {
					results <- result{target: t, err: err}
					continue
				}
				output := filepath.Join(dir, binaryName(t))
				args, env := buildArgs(t, version, output, *withDuckDB)
				cmd := exec.Command("go", args...)
				cmd.Env = append(os.Environ(), env...)
				if out, err := cmd.CombinedOutput(); err != nil {
					_ = os.RemoveAll(dir)
					results <- result{target: t, err: fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))}
					continue
				}
				results <- result{target: t, path: output}
			}
		}()
	}
	go func() {
		for _, t := range targets {
			jobs <- t
		}
		close(jobs)
	}()

	failed := 0
	for range targets {
		r := <-results
		if r.err != nil {
			failed++
			log.Printf("FAIL %s/%s: %v", r.target.OS, r.target.Arch, r.err)
			continue
		}
		log.Printf("ok   %s/%s ➜ %s", r.target.OS, r.target.Arch, r.path)
	}

	latest := filepath.Join(*outDir, "latest")
	_ = os.Remove(latest)
	if err := os.Symlink(version, latest); err != nil {
		log.Printf("Warning: could not link %s: %v", latest, err)
	}
	if failed > 0 {
		os.Exit(1)
	}
}
