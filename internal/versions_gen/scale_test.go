package versionsgen

import (
	"image"
	"testing"
)

func TestPlanScaleAndCrop(t *testing.T) {
	tests := []struct {
		name      string
		src       image.Point
		requested image.Point
		opts      ScaleOptions
		want      ScalePlan
	}{
		{
			name:      "Crop exact size is a no-op",
			src:       image.Pt(200, 200),
			requested: image.Pt(200, 200),
			opts:      ScaleOptions{Crop: true},
			want:      ScalePlan{Size: image.Pt(200, 200)},
		},
		{
			name:      "Crop landscape to square",
			src:       image.Pt(1600, 1200),
			requested: image.Pt(200, 200),
			opts:      ScaleOptions{Crop: true},
			want: ScalePlan{
				Resize:   true,
				Size:     image.Pt(267, 200),
				Crop:     true,
				CropRect: image.Rect(33, 0, 233, 200),
			},
		},
		{
			name:      "Crop portrait to square",
			src:       image.Pt(1200, 1600),
			requested: image.Pt(300, 300),
			opts:      ScaleOptions{Crop: true},
			want: ScalePlan{
				Resize:   true,
				Size:     image.Pt(300, 400),
				Crop:     true,
				CropRect: image.Rect(0, 50, 300, 350),
			},
		},
		{
			name:      "Crop smaller source without upscale",
			src:       image.Pt(100, 50),
			requested: image.Pt(200, 200),
			opts:      ScaleOptions{Crop: true},
			want:      ScalePlan{Size: image.Pt(100, 50)},
		},
		{
			name:      "Crop partially smaller source never expands",
			src:       image.Pt(300, 100),
			requested: image.Pt(200, 200),
			opts:      ScaleOptions{Crop: true},
			want: ScalePlan{
				Size:     image.Pt(300, 100),
				Crop:     true,
				CropRect: image.Rect(50, 0, 250, 100),
			},
		},
		{
			name:      "Crop with upscale",
			src:       image.Pt(100, 50),
			requested: image.Pt(200, 200),
			opts:      ScaleOptions{Crop: true, Upscale: true},
			want: ScalePlan{
				Resize:   true,
				Size:     image.Pt(400, 200),
				Crop:     true,
				CropRect: image.Rect(100, 0, 300, 200),
			},
		},
		{
			name:      "Fit inside box",
			src:       image.Pt(1600, 1200),
			requested: image.Pt(120, 120),
			want: ScalePlan{
				Resize: true,
				Size:   image.Pt(120, 90),
			},
		},
		{
			name:      "Fit smaller source untouched",
			src:       image.Pt(80, 60),
			requested: image.Pt(120, 120),
			want:      ScalePlan{Size: image.Pt(80, 60)},
		},
		{
			name:      "Fit with upscale",
			src:       image.Pt(100, 50),
			requested: image.Pt(200, 200),
			opts:      ScaleOptions{Upscale: true},
			want: ScalePlan{
				Resize: true,
				Size:   image.Pt(200, 100),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PlanScaleAndCrop(tt.src, tt.requested, tt.opts)
			if got != tt.want {
				t.Errorf("PlanScaleAndCrop() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestScaleAndCrop(t *testing.T) {
	codec := NewImagingCodec(0)

	tests := []struct {
		name      string
		src       image.Point
		requested image.Point
		opts      ScaleOptions
		want      image.Point
	}{
		{"Exact size", image.Pt(200, 200), image.Pt(200, 200), ScaleOptions{Crop: true}, image.Pt(200, 200)},
		{"Landscape crop", image.Pt(1600, 1200), image.Pt(200, 200), ScaleOptions{Crop: true}, image.Pt(200, 200)},
		{"Wide crop", image.Pt(1000, 300), image.Pt(160, 90), ScaleOptions{Crop: true}, image.Pt(160, 90)},
		{"Smaller source", image.Pt(100, 50), image.Pt(200, 200), ScaleOptions{Crop: true}, image.Pt(100, 50)},
		{"Fit", image.Pt(1600, 1200), image.Pt(400, 400), ScaleOptions{}, image.Pt(400, 300)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := newGradient(tt.src.X, tt.src.Y)

			out, err := ScaleAndCrop(codec, img, tt.requested, tt.opts)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			if got := out.Bounds().Size(); got != tt.want {
				t.Errorf("Size = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScaleAndCropOffsetBounds(t *testing.T) {
	codec := NewImagingCodec(0)

	// Sub images keep the parent's coordinates
	parent := newGradient(400, 400)
	img := parent.SubImage(image.Rect(100, 100, 400, 300))

	out, err := ScaleAndCrop(codec, img, image.Pt(200, 200), ScaleOptions{Crop: true})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if got := out.Bounds().Size(); got != image.Pt(200, 200) {
		t.Errorf("Size = %v, want 200x200", got)
	}
}

func TestProportionalHeight(t *testing.T) {
	tests := []struct {
		srcW, srcH, width int
		want              int
	}{
		{1600, 1200, 800, 600},
		{1200, 1600, 300, 400},
		{1000, 333, 500, 166},
		{1920, 1080, 680, 382},
		{5000, 10, 100, 1},
	}

	for _, tt := range tests {
		got := proportionalHeight(tt.srcW, tt.srcH, tt.width)
		if got != tt.want {
			t.Errorf(
				"proportionalHeight(%d, %d, %d) = %d, want %d",
				tt.srcW, tt.srcH, tt.width, got, tt.want,
			)
		}
	}
}
