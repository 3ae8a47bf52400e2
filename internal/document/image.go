package document

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sync"
)

// Mode is the color mode of a normalized image.
type Mode int

const (
	ModeRGB Mode = iota
	ModeRGBA
	ModeGray
)

func (m Mode) String() string {
	switch m {
	case ModeRGB:
		return "RGB"
	case ModeRGBA:
		return "RGBA"
	case ModeGray:
		return "L"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Image is a single raster surface representing a whole source document.
// It is never mutated after construction.
//
// The backing raster is *image.RGBA (always opaque) for ModeRGB,
// *image.NRGBA for ModeRGBA and *image.Gray for ModeGray.
type Image struct {
	mode   Mode
	raster image.Image

	encodeOnce sync.Once
	encoded    []byte
	encodeErr  error
}

// newImage coerces src into one of the supported color modes. src must not
// be shared with anyone else; it may be adopted as the backing raster.
func newImage(src image.Image) *Image {
	switch s := src.(type) {
	case *image.Gray:
		return &Image{mode: ModeGray, raster: s}
	case *image.NRGBA:
		return &Image{mode: ModeRGBA, raster: s}
	case *image.RGBA:
		if s.Opaque() {
			return &Image{mode: ModeRGB, raster: s}
		}
		return &Image{mode: ModeRGBA, raster: toNRGBA(s)}
	default:
		return &Image{mode: ModeRGB, raster: toRGB(src)}
	}
}

// Mode returns the color mode.
func (i *Image) Mode() Mode { return i.mode }

// Width returns the width in pixels.
func (i *Image) Width() int { return i.raster.Bounds().Dx() }

// Height returns the height in pixels.
func (i *Image) Height() int { return i.raster.Bounds().Dy() }

// Raster returns the backing raster. Callers must treat it as read-only.
func (i *Image) Raster() image.Image { return i.raster }

// PNG returns the canonical lossless encoding of the image. The result is
// computed once and shared; callers must not modify it.
func (i *Image) PNG() ([]byte, error) {
	i.encodeOnce.Do(func() {
		var buf bytes.Buffer
		enc := png.Encoder{CompressionLevel: png.DefaultCompression}
		if err := enc.Encode(&buf, i.raster); err != nil {
			i.encodeErr = fmt.Errorf("encoding PNG: %w", err)
			return
		}
		i.encoded = buf.Bytes()
	})
	return i.encoded, i.encodeErr
}

func toRGB(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	if o, ok := src.(interface{ Opaque() bool }); ok && o.Opaque() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
		return dst
	}
	// Alpha is dropped, not composited.
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			dst.SetRGBA(x-b.Min.X, y-b.Min.Y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}
	return dst
}

func toNRGBA(src image.Image) *image.NRGBA {
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}
