package extract

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cardcapture/internal/model"
)

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// CropImage decodes raw image bytes, crops them to the given region, and
// re-encodes in the source format. A degenerate or empty region returns the
// original bytes unchanged.
func CropImage(raw []byte, region model.BoundingRegion) ([]byte, string, error) {
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, "", eris.Wrap(err, "extract: decode image")
	}

	rect := image.Rect(
		int(region.MinX), int(region.MinY),
		int(region.MaxX), int(region.MaxY),
	).Intersect(img.Bounds())

	if region.Empty() || rect.Empty() {
		return raw, mimeFor(format), nil
	}

	si, ok := img.(subImager)
	if !ok {
		return raw, mimeFor(format), nil
	}
	cropped := si.SubImage(rect)

	var buf bytes.Buffer
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, cropped, &jpeg.Options{Quality: 90})
	default:
		err = png.Encode(&buf, cropped)
		format = "png"
	}
	if err != nil {
		return nil, "", eris.Wrap(err, "extract: encode cropped image")
	}
	return buf.Bytes(), mimeFor(format), nil
}

func mimeFor(format string) string {
	if format == "jpeg" {
		return "image/jpeg"
	}
	return "image/png"
}
