package plots

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func requireFile(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestScatter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scatter.png")
	require.NoError(t, Scatter([]float64{1, 2, 3}, []float64{3, 1, 2}, path, "x", "y", "title"))
	requireFile(t, path)

	require.Error(t, Scatter([]float64{1}, nil, path, "", "", ""))
}

func TestEmbeddingWithLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.png")
	points := mat.NewDense(3, 2, []float64{0, 0, 1, 1, 2, 0})
	require.NoError(t, EmbeddingWithLabels(points, []string{"a", "b", "λ"}, "t", path, "", ""))
	requireFile(t, path)

	require.Error(t, EmbeddingWithLabels(points, []string{"a"}, "t", path, "", ""))
	require.Error(t, EmbeddingWithLabels(mat.NewDense(2, 3, nil), []string{"a", "b"}, "t", path, "", ""))
}

func TestEmbeddingWithImages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "images.png")
	img, err := GreyscaleImage([]float64{0, 1, 2, 3})
	require.NoError(t, err)
	points := mat.NewDense(2, 2, []float64{0, 0, 1, 1})
	require.NoError(t, EmbeddingWithImages(points, []image.Image{img, img}, "t", path))
	requireFile(t, path)
}

func TestHeatMap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "heat.png")
	m := mat.NewSymDense(3, []float64{
		0, 0.5, 0.1,
		0.5, 0, 0.9,
		0.1, 0.9, 0,
	})
	require.NoError(t, HeatMap(m, []string{"a", "b", "c"}, "sims", path))
	requireFile(t, path)

	// A constant matrix still renders.
	constant := filepath.Join(dir, "constant.png")
	require.NoError(t, HeatMap(mat.NewSymDense(1, nil), []string{"a"}, "", constant))
	requireFile(t, constant)

	require.Error(t, HeatMap(m, []string{"a"}, "", path))
	require.Error(t, HeatMap(mat.NewDense(2, 3, nil), []string{"a", "b"}, "", path))
}

func TestMaskDecoders(t *testing.T) {
	pixels := make([]float64, 64*64)
	pixels[0] = 1
	img, err := DecodeTaskImage("rational", pixels)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 64, 64), img.Bounds())
	require.Equal(t, color.NRGBA{A: 255}, img.At(0, 0))
	require.Equal(t, color.NRGBA{R: 255, G: 255, B: 255}, img.At(1, 0))

	_, err = DecodeTaskImage("logo", pixels)
	require.Error(t, err)
}

func TestTowerImage(t *testing.T) {
	pixels := make([]float64, 256*256*3)
	pixels[3], pixels[4], pixels[5] = 1, 0.5, 0
	img, err := DecodeTaskImage("tower", pixels)
	require.NoError(t, err)
	require.Equal(t, uint8(0), img.(*image.NRGBA).NRGBAAt(0, 0).A)
	require.Equal(t, color.NRGBA{R: 255, G: 128, B: 0, A: 255}, img.(*image.NRGBA).NRGBAAt(1, 0))
}

func TestGreyscaleFallback(t *testing.T) {
	img, err := DecodeTaskImage("list", []float64{0, 2, 4, 4})
	require.NoError(t, err)
	gray := img.(*image.Gray)
	require.Equal(t, uint8(0), gray.GrayAt(0, 0).Y)
	require.Equal(t, uint8(128), gray.GrayAt(1, 0).Y)
	require.Equal(t, uint8(255), gray.GrayAt(1, 1).Y)

	_, err = DecodeTaskImage("list", []float64{1, 2, 3})
	require.Error(t, err)
}
