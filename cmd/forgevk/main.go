// Command forgevk opens a window and renders a textured, spinning mesh with
// Vulkan until the window is closed or the process is interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"os"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/xlab/closer"
	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"

	forgevk "github.com/S96/ForgeVk"
	"github.com/S96/ForgeVk/asset"
	"github.com/S96/ForgeVk/hal/vulkan"
	"github.com/S96/ForgeVk/window"
)

func init() {
	runtime.LockOSThread()
}

var (
	configPath = flag.String("config", "", "path to a JSON config file")
	debug      = flag.Bool("debug", false, "enable validation layers")
	width      = flag.Int("width", 0, "window width")
	height     = flag.Int("height", 0, "window height")
)

func main() {
	flag.Parse()
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "forgevk:", err)
		os.Exit(1)
	}
	level, _ := forgevk.ParseLevel(cfg.LogLevel)
	if cfg.Debug && level > slog.LevelDebug {
		level = slog.LevelDebug
	}
	log := forgevk.NewLogger(os.Stderr, level)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	closer.Bind(func() {
		cancel()
		<-done
	})

	err = run(ctx, cfg, log)
	close(done)
	if err != nil {
		fmt.Fprintf(os.Stderr, "forgevk: %+v\n", err)
		closer.Exit(1)
	}
	closer.Close()
}

func loadConfig() (forgevk.Config, error) {
	cfg := forgevk.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = forgevk.LoadConfig(*configPath); err != nil {
			return cfg, err
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "debug":
			cfg.Debug = *debug
		case "width":
			cfg.Width = *width
		case "height":
			cfg.Height = *height
		}
	})
	return cfg, cfg.Validate()
}

// loadAssets reads shaders, texture and mesh concurrently.
func loadAssets(cfg forgevk.Config) (forgevk.Assets, error) {
	var (
		a   forgevk.Assets
		g   errgroup.Group
		tex *image.RGBA
	)
	g.Go(func() (err error) {
		a.Shaders.Vertex, err = asset.LoadShader(cfg.VertexShader)
		return err
	})
	g.Go(func() (err error) {
		a.Shaders.Fragment, err = asset.LoadShader(cfg.FragmentShader)
		return err
	})
	g.Go(func() (err error) {
		tex, err = asset.LoadTexture(cfg.Texture)
		return err
	})
	g.Go(func() (err error) {
		var src asset.MeshSource = asset.Quad()
		if cfg.Model != "" {
			src = asset.ModelFile(cfg.Model)
		}
		a.Mesh, err = src.Mesh()
		return err
	})
	if err := g.Wait(); err != nil {
		return a, errors.Wrap(err, "load assets")
	}
	a.Texture = tex
	return a, nil
}

func run(ctx context.Context, cfg forgevk.Config, log *slog.Logger) error {
	assets, err := loadAssets(cfg)
	if err != nil {
		return err
	}

	if err := window.Init(); err != nil {
		return err
	}
	defer window.Terminate()
	win, err := window.New(cfg.Title, cfg.Width, cfg.Height)
	if err != nil {
		return err
	}
	defer win.Destroy()

	inst, err := vulkan.NewInstance(vulkan.Config{
		AppName:    cfg.Title,
		Extensions: win.RequiredExtensions(),
		Layers:     cfg.Layers(),
		Debug:      cfg.Debug,
		Log:        log,
	})
	if err != nil {
		return err
	}
	surface, err := inst.CreateSurface(win)
	if err != nil {
		inst.Destroy()
		return err
	}

	sess, err := forgevk.NewSession(inst, surface, win, assets,
		forgevk.WithLogger(log),
		forgevk.WithLayers(cfg.Layers()))
	if err != nil {
		return err
	}
	defer sess.Destroy()
	win.SetResizeCallback(sess.Resize)

	return sess.Run(ctx)
}
