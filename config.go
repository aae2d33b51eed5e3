package forgevk

import (
	"encoding/json"
	"os"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"
)

// Config describes a rendering session. It corresponds to a JSON object;
// fields missing from the file keep their defaults.
type Config struct {
	Title  string `json:"title"`
	Width  int    `json:"width"`
	Height int    `json:"height"`

	VertexShader   string `json:"vertex_shader"`
	FragmentShader string `json:"fragment_shader"`
	Texture        string `json:"texture"`
	// Model is a mesh file. Empty selects the built-in quad.
	Model string `json:"model,omitempty"`

	// Debug enables validation layers and the debug report callback.
	Debug            bool     `json:"debug"`
	ValidationLayers []string `json:"validation_layers"`
	LogLevel         string   `json:"log_level"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Title:            "ForgeVK",
		Width:            800,
		Height:           600,
		VertexShader:     "shaders/vert.spv",
		FragmentShader:   "shaders/frag.spv",
		Texture:          "textures/texture.png",
		ValidationLayers: []string{"VK_LAYER_KHRONOS_validation"},
		LogLevel:         "info",
	}
}

// LoadConfig reads a JSON configuration over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, cfg.Validate()
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.Width <= 0 || c.Height <= 0:
		return errors.Newf("invalid window size %dx%d", c.Width, c.Height)
	case c.VertexShader == "" || c.FragmentShader == "":
		return errors.New("vertex and fragment shader paths are required")
	case c.Texture == "":
		return errors.New("texture path is required")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Layers returns the validation layers to enable.
func (c Config) Layers() []string {
	if !c.Debug {
		return nil
	}
	return c.ValidationLayers
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	var l slog.Level
	if name == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return l, errors.Wrapf(err, "log level %q", name)
	}
	return l, nil
}
