package raster

import (
	"image"
	"image/color"
	"testing"
)

func TestNew_Validation(t *testing.T) {
	testCases := []struct {
		name                    string
		width, height, channels int
		wantErr                 bool
	}{
		{"Gray", 4, 3, 1, false},
		{"RGB", 4, 3, 3, false},
		{"RGBA", 4, 3, 4, false},
		{"Two channels", 4, 3, 2, true},
		{"Zero width", 0, 3, 1, true},
		{"Negative height", 4, -1, 1, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			img, err := New(tc.width, tc.height, tc.channels)
			if tc.wantErr {
				if err == nil {
					t.Fatal("Expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(img.Pix) != tc.width*tc.height*tc.channels {
				t.Errorf("Expected %d samples, got %d", tc.width*tc.height*tc.channels, len(img.Pix))
			}
		})
	}
}

func TestValidate_BufferLength(t *testing.T) {
	img := &Image{Width: 2, Height: 2, Channels: 1, Pix: make([]uint8, 3)}
	if err := img.Validate(); err == nil {
		t.Error("Expected short buffer to fail validation")
	}
}

func TestFromImage_Gray(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 3, 2))
	for i := range src.Pix {
		src.Pix[i] = uint8(i * 10)
	}

	img := FromImage(src)
	if img.Channels != 1 {
		t.Fatalf("Expected 1 channel, got %d", img.Channels)
	}
	if img.Width != 3 || img.Height != 2 {
		t.Fatalf("Expected 3x2, got %dx%d", img.Width, img.Height)
	}
	for i, v := range img.Pix {
		if v != uint8(i*10) {
			t.Errorf("Sample %d: expected %d, got %d", i, i*10, v)
		}
	}
}

func TestFromImage_SubImageOffset(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range src.Pix {
		src.Pix[i] = uint8(i)
	}
	sub := src.SubImage(image.Rect(1, 1, 3, 3))

	img := FromImage(sub)
	expected := []uint8{5, 6, 9, 10}
	for i, v := range expected {
		if img.Pix[i] != v {
			t.Errorf("Sample %d: expected %d, got %d", i, v, img.Pix[i])
		}
	}
}

func TestFromImage_OpaqueColorBecomesRGB(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			src.Set(x, y, color.RGBA{200, 100, 50, 255})
		}
	}

	img := FromImage(src)
	if img.Channels != 3 {
		t.Fatalf("Expected 3 channels, got %d", img.Channels)
	}
	if img.Pix[0] != 200 || img.Pix[1] != 100 || img.Pix[2] != 50 {
		t.Errorf("Unexpected first pixel %v", img.Pix[:3])
	}
}

func TestFromImage_TranslucentKeepsAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	src.SetNRGBA(0, 0, color.NRGBA{10, 20, 30, 128})

	img := FromImage(src)
	if img.Channels != 4 {
		t.Fatalf("Expected 4 channels, got %d", img.Channels)
	}

	rgb := img.WithoutAlpha()
	if rgb.Channels != 3 || len(rgb.Pix) != 3 {
		t.Fatalf("Expected 3-sample RGB copy, got %d channels / %d samples", rgb.Channels, len(rgb.Pix))
	}
	if rgb.Pix[0] != 10 || rgb.Pix[1] != 20 || rgb.Pix[2] != 30 {
		t.Errorf("Unexpected RGB values %v", rgb.Pix)
	}
	if img.Channels != 4 {
		t.Error("WithoutAlpha must not mutate the receiver")
	}
}

func TestGray_LumaWeights(t *testing.T) {
	testCases := []struct {
		name     string
		rgb      [3]uint8
		expected uint8
	}{
		{"Black", [3]uint8{0, 0, 0}, 0},
		{"White", [3]uint8{255, 255, 255}, 255},
		{"Red", [3]uint8{255, 0, 0}, 76},
		{"Green", [3]uint8{0, 255, 0}, 150},
		{"Blue", [3]uint8{0, 0, 255}, 29},
		{"Mid gray", [3]uint8{128, 128, 128}, 128},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			img := &Image{Width: 1, Height: 1, Channels: 3, Pix: tc.rgb[:], ByteSize: 42}
			gray := img.Gray()
			if !gray.IsGray() {
				t.Fatal("Expected single-channel output")
			}
			if gray.Pix[0] != tc.expected {
				t.Errorf("Expected luma %d, got %d", tc.expected, gray.Pix[0])
			}
			if gray.ByteSize != 42 {
				t.Errorf("Expected byte size to carry over, got %d", gray.ByteSize)
			}
		})
	}
}

func TestGray_IdentityForGray(t *testing.T) {
	img, err := NewGray(2, 1, []uint8{1, 2})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if img.Gray() != img {
		t.Error("Expected grayscale image to be returned as is")
	}
}

func TestToImage_RoundTrip(t *testing.T) {
	img := &Image{Width: 2, Height: 1, Channels: 3, Pix: []uint8{1, 2, 3, 4, 5, 6}}
	back := FromImage(img.ToImage())
	if back.Channels != 3 {
		t.Fatalf("Expected 3 channels, got %d", back.Channels)
	}
	for i := range img.Pix {
		if back.Pix[i] != img.Pix[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, img.Pix[i], back.Pix[i])
		}
	}
}
