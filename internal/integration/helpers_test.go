package integration

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/mitchellh/go-ps"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/quaso-pack/internal/builder"
	"github.com/oshokin/quaso-pack/internal/config"
	"github.com/oshokin/quaso-pack/internal/domain/pack"
)

// toolchain stands in for cargo and wasm-pack. It writes the files the real
// tools would produce into the template directory.
type toolchain struct {
	mu sync.Mutex
	// goos decides the executable extension of desktop builds.
	goos string
	// silentWasmFailure makes wasm-pack exit successfully without a .wasm module.
	silentWasmFailure bool
	// calls records every command line.
	calls []string
}

func (tc *toolchain) Run(_ context.Context, cmd builder.Command) ([]byte, error) {
	tc.mu.Lock()
	tc.calls = append(tc.calls, cmd.String())
	tc.mu.Unlock()

	tpl := &pack.Template{Name: filepath.Base(cmd.Dir)}
	outputs := map[string]string{}

	switch cmd.Args[0] {
	case "cargo":
		outputs[filepath.Join("target", "release", tpl.BinaryName(tc.goos))] = "native " + tpl.Name
		outputs[filepath.Join("target", "release", "deps", "lib.rlib")] = "intermediate"
	case "wasm-pack":
		module := cmd.Args[slices.Index(cmd.Args, "--out-name")+1]
		outputs[filepath.Join("pkg", module+".js")] = "export default function init() {}"
		outputs[filepath.Join("pkg", "package.json")] = "{}"

		if !tc.silentWasmFailure {
			outputs[filepath.Join("pkg", module+"_bg.wasm")] = "\x00asm\x01\x00\x00\x00"
		}
	}

	for rel, contents := range outputs {
		path := filepath.Join(cmd.Dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}

		if err := os.WriteFile(path, []byte(contents), 0o755); err != nil {
			return nil, err
		}
	}

	return []byte("    Finished `release` profile [optimized] target(s)"), nil
}

func noProcesses() ([]ps.Process, error) { return nil, nil }

// newWorkspace lays out a quaso workspace with the three bundled templates.
func newWorkspace(t *testing.T) *config.Config {
	t.Helper()

	root := t.TempDir()

	files := map[string]string{
		"Cargo.toml":                                     "[workspace]",
		"quaso-pack.yaml":                                "default_template: fresh-start\n",
		"templates/fresh-start/Cargo.toml":               "[package]\nname = \"fresh-start\"",
		"templates/fresh-start/src/main.rs":              "fn main() {}",
		"templates/fresh-start/index.html":               "<canvas id=\"game\"></canvas>",
		"templates/fresh-start/README.md":                "# Fresh start",
		"templates/fresh-start/assets/a.png":             "a",
		"templates/slot-machine/Cargo.toml":              "[package]\nname = \"slot-machine\"",
		"templates/slot-machine/src/main.rs":             "fn main() {}",
		"templates/slot-machine/index.html":              "<canvas id=\"game\"></canvas>",
		"templates/slot-machine/README.md":               "# Slot machine",
		"templates/slot-machine/assets/reels/cherry.png": "cherry",
		"templates/slot-machine/assets/sounds/spin.ogg":  "spin",
		"templates/slot-machine/assets/atlas.pack":       "packed",
		"templates/top-down/Cargo.toml":                  "[package]\nname = \"top-down\"",
		"templates/top-down/src/main.rs":                 "fn main() {}",
		"templates/top-down/index.html":                  "<canvas id=\"game\"></canvas>",
		"templates/top-down/README.md":                   "# Top down",
		"templates/top-down/assets/tiles.png":            "tiles",
	}

	for rel, contents := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	}

	cfg, err := config.LoadWorkspace(root, "")
	require.NoError(t, err)

	return cfg
}
