package fingerprint

import (
	"image"

	"golang.org/x/image/draw"
)

// Tensor geometry expected by the embedding model: CHW float32, 3x224x224,
// normalized with the CLIP training mean and standard deviation.
const (
	TensorChannels = 3
	TensorSize     = 224
)

var (
	clipMean = [TensorChannels]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [TensorChannels]float32{0.26862954, 0.26130258, 0.27577711}
)

// TensorLen is the flattened length of one preprocessed image tensor.
const TensorLen = TensorChannels * TensorSize * TensorSize

// Preprocess converts a decoded image into the flat CHW tensor the embedding
// server expects. The image is scaled to TensorSize x TensorSize with
// Catmull-Rom resampling, converted to RGB in [0,1] and normalized per channel.
func Preprocess(img image.Image) []float32 {
	dst := image.NewRGBA(image.Rect(0, 0, TensorSize, TensorSize))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)

	tensor := make([]float32, TensorLen)
	plane := TensorSize * TensorSize

	for y := 0; y < TensorSize; y++ {
		for x := 0; x < TensorSize; x++ {
			offset := dst.PixOffset(x, y)
			idx := y*TensorSize + x
			for c := 0; c < TensorChannels; c++ {
				v := float32(dst.Pix[offset+c]) / 255.0
				tensor[c*plane+idx] = (v - clipMean[c]) / clipStd[c]
			}
		}
	}

	return tensor
}
