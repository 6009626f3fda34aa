package ingest

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"strings"

	iface "NutBoltDetServer/interface"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// ErrDecode is the single failure signal for anything wrong with an
// incoming image payload.
var ErrDecode = errors.New("failed to decode image")

// MaxPixels caps width*height before any pixel buffer is allocated.
const MaxPixels = 178956970

// StripDataURL drops a leading "<scheme>," segment such as
// "data:image/jpeg;base64,". Only the field after the first comma is kept.
func StripDataURL(payload string) string {
	payload = strings.TrimSpace(payload)
	if _, rest, ok := strings.Cut(payload, ","); ok {
		field, _, _ := strings.Cut(rest, ",")
		return field
	}
	return payload
}

// DecodeBase64 accepts padded and unpadded standard base64.
func DecodeBase64(payload string) ([]byte, error) {
	b64 := StripDataURL(payload)
	if b64 == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		if raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(b64, "=")); rawErr == nil {
			return raw, nil
		}
		return nil, fmt.Errorf("%w: base64: %v", ErrDecode, err)
	}
	return data, nil
}

// Base64ToRaw decodes a base64 or data-URL image into a BGR buffer.
func Base64ToRaw(payload string) (iface.RawImage, error) {
	data, err := DecodeBase64(payload)
	if err != nil {
		return iface.RawImage{}, err
	}
	return BytesToRaw(data)
}

// BytesToRaw parses an encoded image (jpeg, png, gif, bmp, tiff, webp).
func BytesToRaw(data []byte) (iface.RawImage, error) {
	if len(data) == 0 {
		return iface.RawImage{}, fmt.Errorf("%w: no image bytes", ErrDecode)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return iface.RawImage{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if px := int64(cfg.Width) * int64(cfg.Height); px > MaxPixels {
		return iface.RawImage{}, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrDecode, cfg.Width, cfg.Height, MaxPixels)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return iface.RawImage{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	raw := FromImage(img)
	if raw.Empty() {
		return iface.RawImage{}, fmt.Errorf("%w: image is empty", ErrDecode)
	}
	return raw, nil
}

// FromImage converts any color model to 8-bit RGB, drops alpha without
// compositing, and lays the pixels out as BGR.
func FromImage(img image.Image) iface.RawImage {
	src := imaging.Clone(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	out := iface.RawImage{Width: w, Height: h, Data: make([]byte, w*h*3)}
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w*4]
		dst := out.Data[y*w*3 : (y+1)*w*3]
		for x := 0; x < w; x++ {
			dst[x*3] = row[x*4+2]
			dst[x*3+1] = row[x*4+1]
			dst[x*3+2] = row[x*4]
		}
	}
	return out
}

// ToImage is the inverse of FromImage with alpha set opaque.
func ToImage(raw iface.RawImage) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, raw.Width, raw.Height))
	for y := 0; y < raw.Height; y++ {
		for x := 0; x < raw.Width; x++ {
			s := (y*raw.Width + x) * 3
			d := y*img.Stride + x*4
			img.Pix[d] = raw.Data[s+2]
			img.Pix[d+1] = raw.Data[s+1]
			img.Pix[d+2] = raw.Data[s]
			img.Pix[d+3] = 0xff
		}
	}
	return img
}
