package main

import (
	"bytes"
	"encoding/json"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "nozzlecam" {
		t.Errorf("expected Use 'nozzlecam', got '%s'", rootCmd.Use)
	}
	for _, name := range []string{"port", "host", "db", "seed"} {
		if rootCmd.Flags().Lookup(name) == nil {
			t.Errorf("root command is missing --%s", name)
		}
	}
}

func TestBuildTransformReport(t *testing.T) {
	report, err := buildTransformReport(TransformState{FlipV: true, Rotate: true}, 800, 400)
	if err != nil {
		t.Fatalf("buildTransformReport() error = %v", err)
	}

	want := []string{"scaleY(-1)", "rotate(90deg)", "translate(-100%,-100%)"}
	if strings.Join(report.Functions, "|") != strings.Join(want, "|") {
		t.Errorf("functions = %v, want %v", report.Functions, want)
	}
	if report.Origin != "left top" {
		t.Errorf("origin = %q", report.Origin)
	}
	if report.DisplayBox == nil || report.DisplayBox.ContainerWidth != 200 {
		t.Errorf("display box = %+v", report.DisplayBox)
	}
	if report.Matrix == "" {
		t.Error("matrix should be set when a size is given")
	}

	plain, err := buildTransformReport(TransformState{}, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if plain.CSS != "none" || plain.DisplayBox != nil || plain.Origin != "" {
		t.Errorf("identity report = %+v", plain)
	}

	if _, err := buildTransformReport(TransformState{}, 800, 0); err == nil {
		t.Error("a zero height should fail")
	}
}

func TestTransformCommandJSON(t *testing.T) {
	defer func() { transformFlipH, transformFlipV, transformRotate, transformJSON = false, false, false, false }()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"transform", "--flip-h", "--json"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("transform error = %v", err)
	}

	var report transformReport
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("invalid JSON %q: %v", out.String(), err)
	}
	if report.CSS != "scaleX(-1) translateX(-100%)" {
		t.Errorf("css = %q", report.CSS)
	}
}

func TestCommandFlagsAreIndependent(t *testing.T) {
	defer func() { transformFlipH, transformRotate = false, false }()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"transform", "--flip-h", "--rotate"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("transform error = %v", err)
	}
	if !transformFlipH || !transformRotate {
		t.Fatal("transform flags were not parsed")
	}
	if orientFlipH || orientFlipV || orientRotate {
		t.Errorf("orient flags changed by transform: flip-h=%v flip-v=%v rotate=%v", orientFlipH, orientFlipV, orientRotate)
	}
	for _, name := range []string{"flip-h", "flip-v", "rotate"} {
		if orientCmd.Flags().Lookup(name).Value.String() != "false" {
			t.Errorf("orient --%s = %s after transform", name, orientCmd.Flags().Lookup(name).Value)
		}
	}
}

func TestOutputFormat(t *testing.T) {
	tests := []struct {
		name    string
		flag    string
		path    string
		want    string
		wantErr bool
	}{
		{"From extension", "", "out.webp", FormatWebP, false},
		{"Upper case extension", "", "OUT.PNG", FormatPNG, false},
		{"Flag wins", "png", "out.webp", FormatPNG, false},
		{"Unknown extension", "", "out.jpg", "", true},
		{"No extension", "", "out", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := outputFormat(tt.flag, tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("outputFormat() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("outputFormat() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOrientCommand(t *testing.T) {
	defer func() { orientRotate, orientWidth = false, 0 }()

	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	out := filepath.Join(dir, "out.png")
	if err := os.WriteFile(in, pngBytes(t, 30, 10), 0644); err != nil {
		t.Fatal(err)
	}

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetArgs([]string{"orient", in, out, "--rotate"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("orient error = %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 10 || b.Dy() != 30 {
		t.Errorf("oriented file is %dx%d, want 10x30", b.Dx(), b.Dy())
	}
	if !strings.Contains(stdout.String(), "10x30") {
		t.Errorf("output = %q", stdout.String())
	}
}
