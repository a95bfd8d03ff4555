package main

import (
	"reflect"
	"testing"
)

func TestParseTargets(t *testing.T) {
	t.Parallel()
	got, err := parseTargets(" linux/amd64, windows/amd64,,")
	if err != nil {
		t.Fatal(err)
	}
	want := []target{{"linux", "amd64"}, {"windows", "amd64"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("parseTargets=%v want %v", got, want)
	}
	if _, err := parseTargets("linux"); err == nil {
		t.Fatal("expected error for a target without arch")
	}
}

func TestBuildArgs(t *testing.T) {
	t.Parallel()
	args, env := buildArgs(target{"linux", "arm64"}, "42", "out/pocos-map", true)
	if env[2] != "CGO_ENABLED=1" {
		t.Fatalf("duckdb linux build must enable cgo, env=%v", env)
	}
	if args[len(args)-4] != "duckdb" {
		t.Fatalf("missing duckdb tag: %v", args)
	}

	args, env = buildArgs(target{"windows", "amd64"}, "42", "out/pocos-map.exe", true)
	if env[2] != "CGO_ENABLED=0" {
		t.Fatalf("windows build must stay cgo free, env=%v", env)
	}
	for _, a := range args {
		if a == "duckdb" {
			t.Fatalf("unexpected duckdb tag for windows: %v", args)
		}
	}
	if binaryName(target{"windows", "amd64"}) != "pocos-map.exe" {
		t.Fatal("windows binary needs .exe")
	}
}
