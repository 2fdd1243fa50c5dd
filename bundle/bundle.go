// Package bundle packs a game into one file: the assembly source, the
// game properties and the encoded pictures, with a content hash over all
// of them. Bundles are canonical CBOR, so equal games encode to equal
// bytes.
package bundle

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/nifki/compiler"
	"github.com/chazu/nifki/host"
	"github.com/chazu/nifki/manifest"
	"github.com/chazu/nifki/vm"
)

// FormatVersion is written into every bundle.
const FormatVersion = 1

// Ext is the conventional bundle file extension.
const Ext = ".nfb"

// ErrHashMismatch is returned by Verify when the contents do not match
// the recorded hash.
var ErrHashMismatch = errors.New("bundle: content hash mismatch")

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bundle: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Bundle is a complete game.
type Bundle struct {
	Format     uint8      `cbor:"1,keyasint"`
	Name       string     `cbor:"2,keyasint"`
	Properties Properties `cbor:"3,keyasint"`
	Source     string     `cbor:"4,keyasint"`
	Pictures   []Picture  `cbor:"5,keyasint,omitempty"`
	Hash       [32]byte   `cbor:"6,keyasint"`
}

// Properties are the game settings a host needs to run the bundle.
type Properties struct {
	Width           int    `cbor:"1,keyasint"`
	Height          int    `cbor:"2,keyasint"`
	MsPerFrame      int    `cbor:"3,keyasint"`
	MaxStepsPerTick int    `cbor:"4,keyasint,omitempty"`
	Seed            uint64 `cbor:"5,keyasint,omitempty"`
	Debug           bool   `cbor:"6,keyasint,omitempty"`
}

// Picture is one encoded image and the global it binds to.
type Picture struct {
	Name   string `cbor:"1,keyasint"`
	Width  int    `cbor:"2,keyasint"`
	Height int    `cbor:"3,keyasint"`
	Data   []byte `cbor:"4,keyasint"`
}

// New builds a bundle and records its content hash. Pictures must have
// been loaded by the host package so their image data is available.
func New(name string, props Properties, source string, pics []*vm.Picture) (*Bundle, error) {
	b := &Bundle{
		Format:     FormatVersion,
		Name:       name,
		Properties: props,
		Source:     source,
	}
	for _, p := range pics {
		data := host.PictureData(p)
		if data == nil {
			return nil, fmt.Errorf("bundle: picture %s has no image data", p.Name)
		}
		b.Pictures = append(b.Pictures, Picture{Name: p.Name, Width: p.Width, Height: p.Height, Data: data})
	}
	hash, err := digest(b)
	if err != nil {
		return nil, err
	}
	b.Hash = hash
	return b, nil
}

// digest hashes the canonical encoding of b with its Hash field zeroed,
// so every field but the hash itself is covered.
func digest(b *Bundle) ([32]byte, error) {
	unsealed := *b
	unsealed.Hash = [32]byte{}
	data, err := cborEncMode.Marshal(&unsealed)
	if err != nil {
		return [32]byte{}, fmt.Errorf("bundle: %w", err)
	}
	return sha256.Sum256(data), nil
}

// FromManifest reads a project's entry source and pictures.
func FromManifest(m *manifest.Manifest) (*Bundle, error) {
	src, err := os.ReadFile(m.EntryPath())
	if err != nil {
		return nil, fmt.Errorf("bundle: %w", err)
	}
	pics, err := host.LoadPictures(m.PicturesPath())
	if err != nil {
		return nil, fmt.Errorf("bundle: %w", err)
	}
	props := Properties{
		Width:           m.Game.Width,
		Height:          m.Game.Height,
		MsPerFrame:      m.Game.MsPerFrame,
		MaxStepsPerTick: m.Run.MaxStepsPerTick,
		Seed:            m.Run.Seed,
		Debug:           m.Game.Debug,
	}
	return New(m.Game.Name, props, string(src), pics)
}

// Marshal serializes a Bundle to canonical CBOR bytes.
func Marshal(b *Bundle) ([]byte, error) {
	return cborEncMode.Marshal(b)
}

// Unmarshal deserializes a Bundle from CBOR bytes.
func Unmarshal(data []byte) (*Bundle, error) {
	var b Bundle
	if err := cbor.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("bundle: unmarshal: %w", err)
	}
	if b.Format != FormatVersion {
		return nil, fmt.Errorf("bundle: unsupported format %d", b.Format)
	}
	return &b, nil
}

// Verify checks the content hash, assembles the source and decodes every
// picture, returning what a machine needs to run the game.
func (b *Bundle) Verify(reg *vm.Registry) (*vm.Program, []*vm.Picture, error) {
	hash, err := digest(b)
	if err != nil {
		return nil, nil, err
	}
	if hash != b.Hash {
		return nil, nil, ErrHashMismatch
	}
	prog, err := compiler.Assemble(reg, b.Source)
	if err != nil {
		return nil, nil, err
	}
	pics := make([]*vm.Picture, 0, len(b.Pictures))
	for _, bp := range b.Pictures {
		p, err := host.DecodePicture(bp.Name, bp.Data)
		if err != nil {
			return nil, nil, fmt.Errorf("bundle: %w", err)
		}
		if p.Width != bp.Width || p.Height != bp.Height {
			return nil, nil, fmt.Errorf("bundle: picture %s is %dx%d, recorded as %dx%d",
				bp.Name, p.Width, p.Height, bp.Width, bp.Height)
		}
		pics = append(pics, p)
	}
	return prog, pics, nil
}

// Write stores a bundle at path.
func Write(path string, b *Bundle) error {
	data, err := Marshal(b)
	if err != nil {
		return fmt.Errorf("bundle: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Read loads a bundle from path.
func Read(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}

// Equal reports whether two bundles encode to the same bytes.
func Equal(a, b *Bundle) bool {
	da, errA := Marshal(a)
	db, errB := Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(da, db)
}
