package asset

import (
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"golang.org/x/image/bmp"

	forgevk "github.com/S96/ForgeVk"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadShader(t *testing.T) {
	good := make([]byte, 24)
	binary.LittleEndian.PutUint32(good, forgevk.SPIRVMagic)
	bad := make([]byte, 24)

	code, err := LoadShader(writeFile(t, "vert.spv", good))
	if err != nil {
		t.Fatal(err)
	}
	if len(code) != 24 {
		t.Errorf("len = %d", len(code))
	}

	if _, err := LoadShader(writeFile(t, "bad.spv", bad)); !errors.Is(err, forgevk.ErrShaderModule) {
		t.Errorf("bad magic err = %v", err)
	}
	if _, err := LoadShader(filepath.Join(t.TempDir(), "missing.spv")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file err = %v", err)
	}
}

func encode(t *testing.T, name string, img image.Image, enc func(*os.File, image.Image) error) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := enc(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadTexture(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	src.Set(0, 0, color.NRGBA{R: 255, A: 255})
	src.Set(2, 1, color.NRGBA{B: 255, A: 255})

	tests := []struct {
		name string
		enc  func(*os.File, image.Image) error
	}{
		{"tex.png", func(f *os.File, img image.Image) error { return png.Encode(f, img) }},
		{"tex.bmp", func(f *os.File, img image.Image) error { return bmp.Encode(f, img) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := LoadTexture(encode(t, tt.name, src, tt.enc))
			if err != nil {
				t.Fatal(err)
			}
			if img.Bounds() != image.Rect(0, 0, 3, 2) {
				t.Fatalf("bounds = %v", img.Bounds())
			}
			if got := img.RGBAAt(0, 0); got != (color.RGBA{R: 255, A: 255}) {
				t.Errorf("pixel (0,0) = %v", got)
			}
			if got := img.RGBAAt(2, 1); got != (color.RGBA{B: 255, A: 255}) {
				t.Errorf("pixel (2,1) = %v", got)
			}
		})
	}
}

func TestLoadTextureErrors(t *testing.T) {
	if _, err := LoadTexture(writeFile(t, "junk.png", []byte("not an image"))); err == nil {
		t.Error("junk: expected error")
	}
	if _, err := LoadTexture(filepath.Join(t.TempDir(), "none.png")); err == nil {
		t.Error("missing: expected error")
	}
}

func TestMeshSources(t *testing.T) {
	quad, err := Quad().Mesh()
	if err != nil {
		t.Fatal(err)
	}
	if len(quad.Indices) != len(forgevk.QuadMesh().Indices) {
		t.Errorf("quad indices = %d", len(quad.Indices))
	}

	tri := []forgevk.Vertex{{}, {}, {}}
	tests := []struct {
		name string
		src  MeshSource
		ok   bool
	}{
		{"triangle", StaticMesh{Vertices: tri, Indices: []uint32{0, 1, 2}}, true},
		{"no vertices", StaticMesh{Indices: []uint32{0}}, false},
		{"no indices", StaticMesh{Vertices: tri}, false},
		{"index out of range", StaticMesh{Vertices: tri, Indices: []uint32{0, 1, 3}}, false},
		{"model file", ModelFile("scene.obj"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.src.Mesh()
			if (err == nil) != tt.ok {
				t.Errorf("err = %v, want ok=%v", err, tt.ok)
			}
		})
	}

	if _, err := ModelFile("scene.obj").Mesh(); !errors.Is(err, ErrModelUnsupported) {
		t.Errorf("model file err = %v, want ErrModelUnsupported", err)
	}
}
