package bundle

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/nifki/compiler"
	"github.com/chazu/nifki/manifest"
	"github.com/chazu/nifki/vm"
)

const gameSrc = `LOAD(ship) SPRITE STORE(s) ; LOAD(s) TRUE SET(IsVisible) ; WAIT`

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func writeProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string][]byte{
		manifest.FileName:   []byte("[game]\nname = \"demo\"\nwidth = 160\nheight = 120\n\n[run]\nseed = 7\n"),
		"main.nfk":          []byte(gameSrc),
		"pictures/ship.png": pngBytes(t, 8, 4),
	}
	for name, data := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func projectBundle(t *testing.T) *Bundle {
	t.Helper()
	m, err := manifest.Load(writeProject(t))
	if err != nil {
		t.Fatal(err)
	}
	b, err := FromManifest(m)
	if err != nil {
		t.Fatalf("FromManifest: %v", err)
	}
	return b
}

func TestFromManifest(t *testing.T) {
	b := projectBundle(t)

	if b.Format != FormatVersion || b.Name != "demo" {
		t.Errorf("bundle = format %d name %q", b.Format, b.Name)
	}
	want := Properties{Width: 160, Height: 120, MsPerFrame: manifest.DefaultMsPerFrame, Seed: 7}
	if b.Properties != want {
		t.Errorf("Properties = %+v, want %+v", b.Properties, want)
	}
	if b.Source != gameSrc {
		t.Errorf("Source = %q", b.Source)
	}
	if len(b.Pictures) != 1 || b.Pictures[0].Name != "ship" || b.Pictures[0].Width != 8 {
		t.Errorf("Pictures = %+v", b.Pictures)
	}
}

func TestBundle_CBORRoundTrip(t *testing.T) {
	b := projectBundle(t)

	data, err := Marshal(b)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !Equal(got, b) {
		t.Error("round trip changed the bundle")
	}

	again, _ := Marshal(got)
	if !bytes.Equal(again, data) {
		t.Error("encoding is not deterministic")
	}
}

func TestVerify(t *testing.T) {
	b := projectBundle(t)
	reg := vm.NewRegistry()

	prog, pics, err := b.Verify(reg)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(pics) != 1 || pics[0].Name != "ship" || pics[0].Height != 4 {
		t.Fatalf("pictures = %v", pics)
	}

	m := vm.NewMachine(reg, prog, vm.Config{Width: 160, Height: 120, Console: &vm.Recorder{}})
	if err := m.Define("ship", pics[0]); err != nil {
		t.Fatal(err)
	}
	if sig, err := m.Tick(); sig != vm.Yielded {
		t.Errorf("Tick = %s, %v; want yielded", sig, err)
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	reg := vm.NewRegistry()

	b := projectBundle(t)
	b.Source += " WAIT"
	if _, _, err := b.Verify(reg); !errors.Is(err, ErrHashMismatch) {
		t.Errorf("edited source: err = %v, want ErrHashMismatch", err)
	}

	// The hash covers everything, not only the source.
	tampers := map[string]func(b *Bundle){
		"picture data": func(b *Bundle) { b.Pictures[0].Data[len(b.Pictures[0].Data)-1] ^= 0xFF },
		"picture size": func(b *Bundle) { b.Pictures[0].Width = 99 },
		"properties":   func(b *Bundle) { b.Properties.Seed = 8 },
		"name":         func(b *Bundle) { b.Name = "other" },
		"pictures":     func(b *Bundle) { b.Pictures = nil },
	}
	for name, tamper := range tampers {
		b = projectBundle(t)
		tamper(b)
		if _, _, err := b.Verify(reg); !errors.Is(err, ErrHashMismatch) {
			t.Errorf("%s: err = %v, want ErrHashMismatch", name, err)
		}
	}

	// A resealed bundle still has its pictures checked against their data.
	b = projectBundle(t)
	b.Pictures[0].Width = 99
	b.Hash, _ = digest(b)
	if _, _, err := b.Verify(reg); err == nil || !strings.Contains(err.Error(), "recorded as 99x4") {
		t.Errorf("wrong picture size: err = %v", err)
	}

	b, _ = New("bad", Properties{}, "1 2", nil)
	_, _, err := b.Verify(reg)
	var se *compiler.SyntaxError
	if !errors.As(err, &se) {
		t.Errorf("bad source: err = %v, want a SyntaxError", err)
	}
}

func TestNewRejectsPictureWithoutData(t *testing.T) {
	_, err := New("x", Properties{}, "", []*vm.Picture{{Name: "p", Width: 1, Height: 1}})
	if err == nil {
		t.Error("New accepted a picture with no image data")
	}
}

func TestUnmarshalErrors(t *testing.T) {
	if _, err := Unmarshal([]byte("not cbor")); err == nil || !strings.HasPrefix(err.Error(), "bundle: unmarshal") {
		t.Errorf("garbage: err = %v", err)
	}

	b, _ := New("x", Properties{}, "", nil)
	b.Format = 9
	data, _ := Marshal(b)
	if _, err := Unmarshal(data); err == nil || !strings.Contains(err.Error(), "unsupported format 9") {
		t.Errorf("future format: err = %v", err)
	}
}

func TestWriteRead(t *testing.T) {
	b := projectBundle(t)
	path := filepath.Join(t.TempDir(), "demo"+Ext)
	if err := Write(path, b); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !Equal(got, b) {
		t.Error("Read returned a different bundle")
	}
}
