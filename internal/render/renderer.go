package render

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"captioner/internal/layout"
	"captioner/internal/services"
)

const stageRender = "render"

// Style is the fixed caption appearance applied to every frame.
type Style struct {
	Font  *Font
	Size  float64
	Color color.Color
}

// Renderer draws caption lines with one font face. Not safe for concurrent use.
type Renderer struct {
	face    font.Face
	src     image.Image
	encoder png.Encoder
}

// NewRenderer builds a face for style.
func NewRenderer(style Style) (*Renderer, error) {
	if style.Font == nil || style.Font.parsed == nil {
		return nil, services.Wrap(services.ErrRender, stageRender, "new renderer", "font required", nil)
	}
	if style.Size <= 0 {
		return nil, services.Wrap(services.ErrRender, stageRender, "new renderer", fmt.Sprintf("invalid font size %v", style.Size), nil)
	}
	face, err := opentype.NewFace(style.Font.parsed, &opentype.FaceOptions{
		Size:    style.Size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrRender, stageRender, "new renderer", "create font face", err)
	}
	fill := style.Color
	if fill == nil {
		fill = color.Black
	}
	return &Renderer{
		face:    face,
		src:     image.NewUniform(fill),
		encoder: png.Encoder{CompressionLevel: png.BestSpeed},
	}, nil
}

// Close releases the font face.
func (r *Renderer) Close() error {
	if r == nil || r.face == nil {
		return nil
	}
	return r.face.Close()
}

// Measurer exposes the renderer's face to the layout engine so wrapping and
// drawing agree on widths.
func (r *Renderer) Measurer() layout.Measurer {
	return layout.MeasurerFunc(func(s string) fixed.Int26_6 {
		return font.MeasureString(r.face, s)
	})
}

// Draw paints lines onto dst, each centred horizontally with its baseline at
// line.Y relative to the top of dst.
func (r *Renderer) Draw(dst draw.Image, lines []layout.Line) {
	bounds := dst.Bounds()
	drawer := &font.Drawer{Dst: dst, Src: r.src, Face: r.face}
	centre := fixed.I(bounds.Min.X) + fixed.I(bounds.Dx())/2
	for _, line := range lines {
		advance := drawer.MeasureString(line.Text)
		drawer.Dot = fixed.Point26_6{
			X: centre - advance/2,
			Y: fixed.I(bounds.Min.Y + line.Y),
		}
		drawer.DrawString(line.Text)
	}
}

// RenderCaption decodes the PNG at framePath, draws lines on it, and
// atomically replaces the file with the result.
func (r *Renderer) RenderCaption(framePath string, lines []layout.Line) error {
	src, err := decodePNG(framePath)
	if err != nil {
		return services.Wrap(services.ErrRender, stageRender, "decode frame", filepath.Base(framePath), err)
	}
	bounds := src.Bounds()
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, src, bounds.Min, draw.Src)
	r.Draw(canvas, lines)

	if err := r.writeAtomic(framePath, canvas); err != nil {
		return services.Wrap(services.ErrRender, stageRender, "encode frame", filepath.Base(framePath), err)
	}
	return nil
}

// FrameWidth reads only the PNG header of path and returns its width.
func FrameWidth(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, services.Wrap(services.ErrRender, stageRender, "frame size", "open frame", err)
	}
	defer file.Close()
	cfg, err := png.DecodeConfig(bufio.NewReader(file))
	if err != nil {
		return 0, services.Wrap(services.ErrRender, stageRender, "frame size", filepath.Base(path), err)
	}
	return cfg.Width, nil
}

func decodePNG(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return png.Decode(bufio.NewReader(file))
}

func (r *Renderer) writeAtomic(path string, img image.Image) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".render-*.png")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	buffered := bufio.NewWriter(tmp)
	if err = r.encoder.Encode(buffered, img); err != nil {
		return err
	}
	if err = buffered.Flush(); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
