// Package host supplies what a Nifki machine needs from its
// surroundings: pictures bound to globals, a key snapshot, a render step
// and a frame clock. Nothing here draws pixels; a Renderer receives the
// Scene for each frame.
package host

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chazu/nifki/vm"
)

// PictureExts lists the file extensions loaded as pictures.
var PictureExts = []string{".png", ".gif", ".jpg", ".jpeg"}

// IsPictureFile reports whether path has a picture extension.
func IsPictureFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range PictureExts {
		if ext == e {
			return true
		}
	}
	return false
}

// PictureName returns the global name a picture file binds to: the base
// filename without its extension.
func PictureName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// DecodePicture builds a picture from encoded image data. Only the
// image header is decoded; the data itself is kept as the handle.
func DecodePicture(name string, data []byte) (*vm.Picture, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("picture %s: %w", name, err)
	}
	log.Debugf("picture %s: %s %dx%d", name, format, cfg.Width, cfg.Height)
	return &vm.Picture{
		Name:   name,
		Width:  cfg.Width,
		Height: cfg.Height,
		Handle: data,
	}, nil
}

// PictureData returns the encoded image bytes behind a picture loaded
// by this package, or nil.
func PictureData(p *vm.Picture) []byte {
	data, _ := p.Handle.([]byte)
	return data
}

// LoadPicture reads one picture file.
func LoadPicture(path string) (*vm.Picture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodePicture(PictureName(path), data)
}

// LoadPictures reads every picture file in dir, sorted by name. A
// missing directory yields no pictures.
func LoadPictures(dir string) ([]*vm.Picture, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var pics []*vm.Picture
	seen := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() || !IsPictureFile(e.Name()) {
			continue
		}
		name := PictureName(e.Name())
		if prev, ok := seen[name]; ok {
			return nil, fmt.Errorf("pictures %s and %s both define '%s'", prev, e.Name(), name)
		}
		seen[name] = e.Name()
		pic, err := LoadPicture(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		pics = append(pics, pic)
	}
	sort.Slice(pics, func(i, j int) bool { return pics[i].Name < pics[j].Name })
	return pics, nil
}

// BindPictures stores each picture in the global of the same name.
// Every picture must be used by the program, and a global that is
// already a function cannot also be a picture.
func BindPictures(m *vm.Machine, pics []*vm.Picture) error {
	for _, p := range pics {
		if _, ok := m.Program().Slot(p.Name); !ok {
			return fmt.Errorf("The picture '%s' appears in the resources, but is not used", p.Name)
		}
		if err := m.Define(p.Name, p); err != nil {
			return err
		}
	}
	return nil
}
