package versionsgen

import (
	"image"
	"math"
)

// ScaleOptions mirrors the flags accepted by ScaleAndCrop.
type ScaleOptions struct {
	Crop    bool
	Upscale bool
}

// ScalePlan is the geometry ScaleAndCrop applies to an image. Size is the
// size after resizing; CropRect is relative to the resized image.
type ScalePlan struct {
	Resize   bool
	Size     image.Point
	Crop     bool
	CropRect image.Rectangle
}

// PlanScaleAndCrop computes the resize and crop needed to bring an image
// of size src to the requested size.
//
// When cropping the image is scaled to cover the requested box and the
// centered excess is cut away; otherwise it is scaled to fit inside it.
// Images are never enlarged unless opts.Upscale is set.
func PlanScaleAndCrop(src, requested image.Point, opts ScaleOptions) ScalePlan {
	x, y := float64(src.X), float64(src.Y)
	xr, yr := float64(requested.X), float64(requested.Y)

	var r float64
	if opts.Crop {
		r = math.Max(xr/x, yr/y)
	} else {
		r = math.Min(xr/x, yr/y)
	}

	plan := ScalePlan{Size: src}
	if r < 1.0 || (r > 1.0 && opts.Upscale) {
		plan.Resize = true
		plan.Size = image.Pt(
			max(1, int(math.Round(x*r))),
			max(1, int(math.Round(y*r))),
		)
	}

	if opts.Crop {
		x, y = float64(plan.Size.X), float64(plan.Size.Y)
		w, h := math.Min(x, xr), math.Min(y, yr)
		ex, ey := (x-w)/2, (y-h)/2
		if ex != 0 || ey != 0 {
			minX, minY := int(ex), int(ey)
			plan.Crop = true
			plan.CropRect = image.Rect(minX, minY, minX+int(w), minY+int(h))
		}
	}

	return plan
}

// ScaleAndCrop applies PlanScaleAndCrop to img using codec. No file is
// read or written.
func ScaleAndCrop(
	codec ImageCodec,
	img image.Image,
	requested image.Point,
	opts ScaleOptions,
) (image.Image, error) {
	bounds := img.Bounds()
	plan := PlanScaleAndCrop(bounds.Size(), requested, opts)

	var err error
	if plan.Resize {
		img, err = codec.Resize(img, plan.Size.X, plan.Size.Y)
		if err != nil {
			return nil, err
		}
	}

	if plan.Crop {
		img, err = codec.Crop(img, plan.CropRect.Add(img.Bounds().Min))
		if err != nil {
			return nil, err
		}
	}

	return img, nil
}

// proportionalHeight returns floor(width / (srcW / srcH)), never less
// than one pixel.
func proportionalHeight(srcW, srcH, width int) int {
	return max(1, int(int64(width)*int64(srcH)/int64(srcW)))
}

// fitWithin returns the size of src scaled down to fit bounds, keeping
// its aspect ratio. Images already inside bounds keep their size.
func fitWithin(src, bounds image.Point) image.Point {
	return PlanScaleAndCrop(src, bounds, ScaleOptions{}).Size
}
