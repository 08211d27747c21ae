package imgx

import (
	"fmt"
	"image"
	"image/color"
	"os"

	"github.com/bmharper/cimg/v2"
)

// Package imgx converts between cimg images (which we use for JPEG encode/decode)
// and image.RGBA (which we use for compositing).

const DefaultJPEGQuality = 85

// Convert a cimg image to RGBA.
// Supported inputs are 1 channel (gray), 3 channel (RGB) and 4 channel (RGBA).
func ToRGBA(src *cimg.Image) (*image.RGBA, error) {
	dst := image.NewRGBA(image.Rect(0, 0, src.Width, src.Height))
	nchan := src.NChan()
	if nchan != 1 && nchan != 3 && nchan != 4 {
		return nil, fmt.Errorf("Unsupported number of channels %v", nchan)
	}
	for y := 0; y < src.Height; y++ {
		srcLine := src.Pixels[y*src.Stride:]
		dstLine := dst.Pix[y*dst.Stride:]
		for x := 0; x < src.Width; x++ {
			s := srcLine[x*nchan:]
			d := dstLine[x*4 : x*4+4]
			switch nchan {
			case 1:
				d[0], d[1], d[2], d[3] = s[0], s[0], s[0], 255
			case 3:
				d[0], d[1], d[2], d[3] = s[0], s[1], s[2], 255
			case 4:
				d[0], d[1], d[2], d[3] = s[0], s[1], s[2], s[3]
			}
		}
	}
	return dst, nil
}

// Wrap an RGBA image as a cimg image, without copying pixels.
// The image must have an origin of (0,0).
func WrapRGBA(img *image.RGBA) *cimg.Image {
	b := img.Bounds()
	return cimg.WrapImageStrided(b.Dx(), b.Dy(), cimg.PixelFormatRGBA, img.Pix[img.PixOffset(b.Min.X, b.Min.Y):], img.Stride)
}

// Encode an RGBA image as a JPEG
func EncodeJPEG(img *image.RGBA, quality int) ([]byte, error) {
	if quality <= 0 {
		quality = DefaultJPEGQuality
	}
	return cimg.Compress(WrapRGBA(img), cimg.MakeCompressParams(cimg.Sampling(cimg.Sampling420), quality, cimg.Flags(0)))
}

// Decode a JPEG into an RGBA image
func DecodeJPEG(raw []byte) (*image.RGBA, error) {
	img, err := cimg.Decompress(raw)
	if err != nil {
		return nil, err
	}
	return ToRGBA(img)
}

// Read a JPEG file into an RGBA image
func ReadJPEGFile(filename string) (*image.RGBA, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	img, err := DecodeJPEG(raw)
	if err != nil {
		return nil, fmt.Errorf("Failed to decode %v: %w", filename, err)
	}
	return img, nil
}

// Clone returns a deep copy of img, with its origin moved to (0,0)
func Clone(img *image.RGBA) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		srcOff := img.PixOffset(b.Min.X, b.Min.Y+y)
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+b.Dx()*4], img.Pix[srcOff:srcOff+b.Dx()*4])
	}
	return dst
}

// CopyRect returns a new image containing the pixels of img inside r.
// r is in img's coordinate system, and must lie inside img's bounds.
// The result has its origin at (0,0).
func CopyRect(img *image.RGBA, r image.Rectangle) *image.RGBA {
	return Clone(img.SubImage(r).(*image.RGBA))
}

// Paste src into dst, with src's top-left corner at 'at'.
// Pixels that fall outside dst are ignored.
func Paste(dst, src *image.RGBA, at image.Point) {
	sb := src.Bounds()
	target := image.Rectangle{Min: at, Max: at.Add(sb.Size())}.Intersect(dst.Bounds())
	for y := target.Min.Y; y < target.Max.Y; y++ {
		dstOff := dst.PixOffset(target.Min.X, y)
		srcOff := src.PixOffset(sb.Min.X+target.Min.X-at.X, sb.Min.Y+y-at.Y)
		n := target.Dx() * 4
		copy(dst.Pix[dstOff:dstOff+n], src.Pix[srcOff:srcOff+n])
	}
}

// Fill r with a solid color, clipped to img's bounds
func Fill(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			off := img.PixOffset(x, y)
			img.Pix[off+0] = c.R
			img.Pix[off+1] = c.G
			img.Pix[off+2] = c.B
			img.Pix[off+3] = c.A
		}
	}
}

// Blend src over dst in place, as dst = dst*(1-weight) + src*weight.
// Both images must be the same size.
func Blend(dst, src *image.RGBA, weight float32) error {
	if dst.Bounds().Size() != src.Bounds().Size() {
		return fmt.Errorf("Blend size mismatch %v vs %v", dst.Bounds().Size(), src.Bounds().Size())
	}
	weight = min(max(weight, 0), 1)
	db := dst.Bounds()
	sb := src.Bounds()
	for y := 0; y < db.Dy(); y++ {
		dOff := dst.PixOffset(db.Min.X, db.Min.Y+y)
		sOff := src.PixOffset(sb.Min.X, sb.Min.Y+y)
		for i := 0; i < db.Dx()*4; i++ {
			if i%4 == 3 {
				continue
			}
			d := float32(dst.Pix[dOff+i])
			s := float32(src.Pix[sOff+i])
			dst.Pix[dOff+i] = uint8(d*(1-weight) + s*weight + 0.5)
		}
	}
	return nil
}
