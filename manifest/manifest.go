// Package manifest handles nifki.toml project configuration.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the name of the project file.
const FileName = "nifki.toml"

// Defaults for a project that leaves fields out.
const (
	DefaultWidth      = 400
	DefaultHeight     = 300
	DefaultMsPerFrame = 40
	DefaultEntry      = "main.nfk"
	DefaultPictures   = "pictures"
)

// Manifest represents a nifki.toml project configuration.
type Manifest struct {
	Game   Game   `toml:"game"`
	Source Source `toml:"source"`
	Run    Run    `toml:"run"`

	// Dir is the directory containing the nifki.toml file (set at load time).
	Dir string `toml:"-"`
}

// Game holds the game properties the runtime needs.
type Game struct {
	Name       string `toml:"name"`
	Width      int    `toml:"width"`
	Height     int    `toml:"height"`
	MsPerFrame int    `toml:"ms-per-frame"`

	// Debug shows DUMP output while the game runs. Without it, output
	// is only shown if the game faults.
	Debug bool `toml:"debug"`
}

// Source configures where the assembly and the pictures live.
type Source struct {
	Entry    string `toml:"entry"`
	Pictures string `toml:"pictures"`
}

// Run configures machine limits.
type Run struct {
	MaxStepsPerTick int    `toml:"max-steps-per-tick"`
	Seed            uint64 `toml:"seed"`
}

// Default returns the manifest used for a project with no nifki.toml.
// Such a project is assumed to be under development, so Debug is set.
func Default(dir string) *Manifest {
	m := &Manifest{Dir: dir, Game: Game{Debug: true}}
	m.applyDefaults()
	if m.Game.Name == "" {
		m.Game.Name = filepath.Base(dir)
	}
	return m
}

// Parse decodes nifki.toml content and applies defaults. Dir is left
// empty.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %s", undecoded[0])
	}
	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Load parses a nifki.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	if m.Game.Name == "" {
		m.Game.Name = filepath.Base(m.Dir)
	}
	return m, nil
}

// FindAndLoad walks up from startDir to find a nifki.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

func (m *Manifest) applyDefaults() {
	if m.Game.Width == 0 {
		m.Game.Width = DefaultWidth
	}
	if m.Game.Height == 0 {
		m.Game.Height = DefaultHeight
	}
	if m.Game.MsPerFrame == 0 {
		m.Game.MsPerFrame = DefaultMsPerFrame
	}
	if m.Source.Entry == "" {
		m.Source.Entry = DefaultEntry
	}
	if m.Source.Pictures == "" {
		m.Source.Pictures = DefaultPictures
	}
}

// Validate reports every out-of-range setting.
func (m *Manifest) Validate() error {
	var errs []error
	if m.Game.Width < 0 || m.Game.Height < 0 {
		errs = append(errs, fmt.Errorf("game size %dx%d is negative", m.Game.Width, m.Game.Height))
	}
	if m.Game.MsPerFrame < 0 {
		errs = append(errs, fmt.Errorf("ms-per-frame %d is negative", m.Game.MsPerFrame))
	}
	if m.Run.MaxStepsPerTick < 0 {
		errs = append(errs, fmt.Errorf("max-steps-per-tick %d is negative", m.Run.MaxStepsPerTick))
	}
	if filepath.IsAbs(m.Source.Entry) {
		errs = append(errs, fmt.Errorf("source entry %s must be relative to the project", m.Source.Entry))
	}
	return errors.Join(errs...)
}

// EntryPath returns the absolute path of the assembly source.
func (m *Manifest) EntryPath() string {
	return filepath.Join(m.Dir, m.Source.Entry)
}

// PicturesPath returns the absolute path of the picture directory.
func (m *Manifest) PicturesPath() string {
	return filepath.Join(m.Dir, m.Source.Pictures)
}

// FrameInterval returns the frame period.
func (m *Manifest) FrameInterval() time.Duration {
	return time.Duration(m.Game.MsPerFrame) * time.Millisecond
}
