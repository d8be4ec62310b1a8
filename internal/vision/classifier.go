// Package vision runs an optional local ONNX image classifier over a board
// photo, e.g. to tell a router from a camera module before the scan report
// is written.
package vision

import (
	"bufio"
	"fmt"
	"image"
	"math"
	"os"
	"sort"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/image/draw"
)

var (
	imagenetMean = [3]float32{0.485, 0.456, 0.406}
	imagenetStd  = [3]float32{0.229, 0.224, 0.225}
)

const defaultSide = 224

type LabelScore struct {
	Label       string  `json:"label" yaml:"label"`
	Index       int     `json:"index" yaml:"index"`
	Probability float32 `json:"probability" yaml:"probability"`
}

type Config struct {
	ModelPath     string
	LabelsPath    string
	SharedLibPath string
	TopK          int
}

// Classifier loads the model on first use and is safe for concurrent calls.
type Classifier struct {
	cfg Config

	mu      sync.Mutex
	once    sync.Once
	initErr error
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	side    int
	labels  []string
}

func NewClassifier(cfg Config) *Classifier {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	return &Classifier{cfg: cfg}
}

func (c *Classifier) init() error {
	c.once.Do(func() {
		if c.cfg.SharedLibPath != "" {
			ort.SetSharedLibraryPath(c.cfg.SharedLibPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			c.initErr = fmt.Errorf("onnx init environment: %w", err)
			return
		}

		labels, err := LoadLabels(c.cfg.LabelsPath)
		if err != nil {
			c.initErr = fmt.Errorf("load labels: %w", err)
			return
		}
		c.labels = labels

		inputs, outputs, err := ort.GetInputOutputInfo(c.cfg.ModelPath)
		if err != nil {
			c.initErr = fmt.Errorf("onnx get input/output info: %w", err)
			return
		}
		if len(inputs) == 0 || len(outputs) == 0 {
			c.initErr = fmt.Errorf("onnx model has no inputs or outputs")
			return
		}
		c.side = inputSide(inputs[0].Dimensions)

		input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(c.side), int64(c.side)))
		if err != nil {
			c.initErr = fmt.Errorf("onnx new input tensor: %w", err)
			return
		}
		outShape := outputs[0].Dimensions.Clone()
		for i, d := range outShape {
			if d < 0 {
				outShape[i] = 1
			}
		}
		output, err := ort.NewEmptyTensor[float32](outShape)
		if err != nil {
			input.Destroy()
			c.initErr = fmt.Errorf("onnx new output tensor: %w", err)
			return
		}

		session, err := ort.NewAdvancedSession(c.cfg.ModelPath,
			[]string{inputs[0].Name}, []string{outputs[0].Name},
			[]ort.Value{input}, []ort.Value{output}, nil)
		if err != nil {
			output.Destroy()
			input.Destroy()
			c.initErr = fmt.Errorf("onnx new session: %w", err)
			return
		}
		c.input, c.output, c.session = input, output, session
	})
	return c.initErr
}

// Classify returns the top-k labels with softmax probabilities.
func (c *Classifier) Classify(img image.Image) ([]LabelScore, error) {
	if err := c.init(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	copy(c.input.GetData(), Tensor(img, c.side))
	if err := c.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}
	return TopK(Softmax(c.output.GetData()), c.labels, c.cfg.TopK), nil
}

func (c *Classifier) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		_ = c.session.Destroy()
		c.session = nil
	}
	if c.input != nil {
		_ = c.input.Destroy()
		c.input = nil
	}
	if c.output != nil {
		_ = c.output.Destroy()
		c.output = nil
	}
}

// Tensor scales img to side×side and lays it out as NCHW float32 with
// ImageNet normalisation.
func Tensor(img image.Image, side int) []float32 {
	if side <= 0 {
		side = defaultSide
	}
	dst := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	plane := side * side
	out := make([]float32, 3*plane)
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			i := y*dst.Stride + x*4
			idx := y*side + x
			for ch := 0; ch < 3; ch++ {
				v := float32(dst.Pix[i+ch]) / 255
				out[ch*plane+idx] = (v - imagenetMean[ch]) / imagenetStd[ch]
			}
		}
	}
	return out
}

func Softmax(logits []float32) []float32 {
	out := make([]float32, len(logits))
	if len(logits) == 0 {
		return out
	}
	maxV := logits[0]
	for _, v := range logits[1:] {
		if v > maxV {
			maxV = v
		}
	}
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - maxV))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}

// TopK pairs the k highest scores with their labels, best first.
func TopK(scores []float32, labels []string, k int) []LabelScore {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })
	if k > len(idx) {
		k = len(idx)
	}
	out := make([]LabelScore, 0, k)
	for _, i := range idx[:k] {
		label := ""
		if i < len(labels) {
			label = labels[i]
		}
		out = append(out, LabelScore{Label: label, Index: i, Probability: scores[i]})
	}
	return out
}

func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var labels []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		labels = append(labels, strings.TrimSpace(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return labels, nil
}

// inputSide reads H from an NCHW input shape, falling back to 224 for
// dynamic or unexpected shapes.
func inputSide(shape ort.Shape) int {
	if len(shape) == 4 && shape[2] > 0 && shape[2] == shape[3] {
		return int(shape[2])
	}
	return defaultSide
}
