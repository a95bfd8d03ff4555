//go:build !js

package qrlogoext

// QR with a center mark using github.com/skip2/go-qrcode (ECC=H).
// - Light background (incl. quiet zone), dark blue modules.
// - Central box keeps the modules clear; a PNG logo or a water drop is drawn inside.
// - Scaling is nearest-neighbor; everything is drawn in memory.

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	qrcode "github.com/skip2/go-qrcode"
)

type Options struct {
	// Output size (px)
	TargetPx int

	Fg   color.RGBA // modules
	Bg   color.RGBA // background and quiet zone
	Logo color.RGBA // drop color when no PNG logo is given

	// Center box as a fraction of the image side, clamped to 0.20..0.40
	LogoBoxFrac float64

	// Padding around a PNG logo inside the box (px)
	LogoPadding int
}

// Default colors follow the dashboard header.
var (
	DefaultFg   = color.RGBA{0x1e, 0x3c, 0x72, 0xff}
	DefaultBg   = color.RGBA{0xff, 0xff, 0xff, 0xff}
	DefaultLogo = color.RGBA{0x2a, 0x52, 0x98, 0xff}
)

func EncodePNG(w io.Writer, data []byte, logoPNG []byte, opt Options) error {
	if opt.TargetPx <= 0 {
		opt.TargetPx = 1024
	}
	if opt.LogoPadding < 0 {
		opt.LogoPadding = 0
	}
	if opt.LogoBoxFrac <= 0 {
		opt.LogoBoxFrac = 0.28
	}
	opt.LogoBoxFrac = math.Min(math.Max(opt.LogoBoxFrac, 0.20), 0.40)
	if (opt.Fg == color.RGBA{}) {
		opt.Fg = DefaultFg
	}
	if (opt.Bg == color.RGBA{}) {
		opt.Bg = DefaultBg
	}
	if (opt.Logo == color.RGBA{}) {
		opt.Logo = DefaultLogo
	}

	qr, err := qrcode.New(string(data), qrcode.Highest)
	if err != nil {
		return err
	}
	qr.ForegroundColor = opt.Fg
	qr.BackgroundColor = opt.Bg

	src := qr.Image(opt.TargetPx)
	b := src.Bounds()
	W, H := b.Dx(), b.Dy()

	dst := image.NewRGBA(image.Rect(0, 0, W, H))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{opt.Bg}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)

	box := int(opt.LogoBoxFrac * float64(min(W, H)))
	if box%2 == 1 {
		box--
	}
	cx, cy := W/2, H/2
	fillRect(dst, cx-box/2, cy-box/2, box, box, opt.Bg)

	drawn := false
	if len(logoPNG) > 0 {
		if img, err := png.Decode(bytes.NewReader(logoPNG)); err == nil {
			maxSide := box - 2*opt.LogoPadding
			if maxSide > 0 {
				sw, sh := fitRect(img.Bounds().Dx(), img.Bounds().Dy(), maxSide, maxSide)
				scaled := scaleNearest(img, sw, sh)
				ox, oy := cx-sw/2, cy-sh/2
				draw.Draw(dst, image.Rect(ox, oy, ox+sw, oy+sh), scaled, image.Point{}, draw.Over)
				drawn = true
			}
		}
	}
	if !drawn {
		drawDrop(dst, cx, cy, box, opt.Logo, opt.Bg)
	}

	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	return enc.Encode(w, dst)
}

// drawDrop draws a water drop: a round base with a cone rising to a tip,
// plus a small highlight in the background color.
func drawDrop(dst *image.RGBA, cx, cy, box int, col, highlight color.RGBA) {
	half := box / 2
	r := int(0.50 * float64(half))
	baseY := cy + int(0.30*float64(half))
	tipY := cy - int(0.85*float64(half))

	fillCircle(dst, cx, baseY, r, col)

	// The cone meets the circle along its tangents; approximating with the
	// horizontal diameter is close enough at this size.
	span := baseY - tipY
	for y := tipY; y <= baseY; y++ {
		w := int(float64(r) * float64(y-tipY) / float64(span))
		fillRect(dst, cx-w, y, 2*w+1, 1, col)
	}

	fillCircle(dst, cx-r/3, baseY-r/6, max(r/5, 1), highlight)
}

func fitRect(w, h, maxW, maxH int) (int, int) {
	if w == 0 || h == 0 {
		return maxW, maxH
	}
	s := math.Min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	sw := max(int(math.Floor(float64(w)*s)), 1)
	sh := max(int(math.Floor(float64(h)*s)), 1)
	return sw, sh
}

func scaleNearest(src image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	sb := src.Bounds()
	sw, sh := sb.Dx(), sb.Dy()
	for y := 0; y < h; y++ {
		sy := sb.Min.Y + int(float64(y)*float64(sh)/float64(h))
		for x := 0; x < w; x++ {
			sx := sb.Min.X + int(float64(x)*float64(sw)/float64(w))
			dst.Set(x, y, src.At(sx, sy))
		}
	}
	return dst
}

func fillRect(img *image.RGBA, x, y, w, h int, col color.RGBA) {
	for yy := y; yy < y+h; yy++ {
		for xx := x; xx < x+w; xx++ {
			img.Set(xx, yy, col)
		}
	}
}

func fillCircle(img *image.RGBA, cx, cy, r int, col color.RGBA) {
	if r <= 0 {
		return
	}
	r2 := r * r
	b := img.Bounds()
	minY := max(cy-r, b.Min.Y)
	maxY := min(cy+r, b.Max.Y-1)
	for y := minY; y <= maxY; y++ {
		dy := y - cy
		xx := int(math.Sqrt(float64(r2 - dy*dy)))
		x1 := max(cx-xx, b.Min.X)
		x2 := min(cx+xx, b.Max.X-1)
		for x := x1; x <= x2; x++ {
			img.Set(x, y, col)
		}
	}
}
