// Package scan is the offline board teardown pipeline: classical image
// processing, colour segmentation and model-assisted identification,
// written out as a report plus PNG artefacts.
package scan

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"pcbrecon/internal/ai"
	"pcbrecon/internal/imaging"
	"pcbrecon/internal/segment"
	"pcbrecon/internal/vision"
)

const (
	workWidth  = 640
	workHeight = 480

	cannyLow  = 100
	cannyHigh = 200

	minInterfaceSide = 20
	minAspect        = 0.8
	maxAspect        = 1.2

	closeRadius    = 2
	overlayOpacity = 0.3

	maxLegendLines = 12
)

// Classifier labels a whole board image.
type Classifier interface {
	Classify(img image.Image) ([]vision.LabelScore, error)
}

type Models struct {
	Vision string
	Text   string
}

type Options struct {
	Models      Models
	MaxClusters int
	SampleSize  int
	Logger      *log.Logger
}

type Scanner struct {
	llm        ai.Client
	classifier Classifier
	opts       Options
}

// Images are the intermediate and final pictures of one run.
type Images struct {
	Edges     *image.Gray
	Segmented *image.RGBA
	Cleaned   *image.Gray
	Overlay   *image.RGBA
	Annotated *image.RGBA
}

type Result struct {
	Report *Report
	Images Images
}

// NewScanner wires the pipeline; classifier may be nil.
func NewScanner(llm ai.Client, classifier Classifier, opts Options) *Scanner {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	return &Scanner{llm: llm, classifier: classifier, opts: opts}
}

// Run loads the image at path and analyses it.
func (s *Scanner) Run(ctx context.Context, path string) (*Result, error) {
	img, err := LoadImage(path)
	if err != nil {
		return nil, err
	}
	s.opts.Logger.Printf("Using image: %s", path)
	return s.Analyze(ctx, img, path)
}

func (s *Scanner) Analyze(ctx context.Context, img image.Image, source string) (*Result, error) {
	logger := s.opts.Logger
	bounds := img.Bounds()
	original := imaging.ToRGBA(img)
	report := &Report{
		Source:      source,
		GeneratedAt: time.Now().UTC(),
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
	}

	processed := Preprocess(img)
	edges := imaging.Canny(processed, cannyLow, cannyHigh)

	components, err := s.detectComponents(ctx, edges)
	if err != nil {
		return nil, err
	}
	report.Components = components
	logger.Printf("Detected Components:\n%s", components)

	candidates := DebugInterfaces(edges)
	report.DebugInterfaces = toBoxes(candidates)
	logger.Printf("Detected Debugging Interfaces: %v", candidates)

	seg, err := segment.Segment(img, segment.Options{
		MaxClusters: s.opts.MaxClusters,
		SampleSize:  s.opts.SampleSize,
	})
	if err != nil {
		return nil, fmt.Errorf("segment image failed: %w", err)
	}
	logger.Printf("Optimal number of clusters: %d", seg.Selection.K)
	cleaned, overlay := Clean(original, seg.Segmented)
	report.Segmentation = *seg.Selection
	logger.Printf("Machine learning-powered analysis completed.")

	report.Microcontroller = s.ask(ctx, fmt.Sprintf(microcontrollerPromptFormat, components), "microcontroller identification")
	logger.Printf("Identified Microcontroller:\n%s", report.Microcontroller)

	report.SecurityAnalysis = s.ask(ctx, fmt.Sprintf(securityPromptFormat, components), "hardware security assessment")
	logger.Printf("Hardware Security Assessment:\n%s", report.SecurityAnalysis)

	if s.classifier != nil {
		labels, err := s.classifier.Classify(img)
		if err != nil {
			logger.Printf("board classification failed: %v", err)
		} else {
			report.Classification = labels
		}
	}

	annotated := Annotate(original, scaleBoxes(candidates, bounds.Dx(), bounds.Dy()), ComponentLines(components))

	return &Result{
		Report: report,
		Images: Images{
			Edges:     edges,
			Segmented: seg.Segmented,
			Cleaned:   cleaned,
			Overlay:   overlay,
			Annotated: annotated,
		},
	}, nil
}

func (s *Scanner) detectComponents(ctx context.Context, edges *image.Gray) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, edges); err != nil {
		return "", fmt.Errorf("encode edge map failed: %w", err)
	}
	text, err := s.llm.Generate(ctx, ai.Prompt(s.opts.Models.Vision,
		ai.TextPart(componentsPrompt),
		ai.ImagePart("image/png", buf.Bytes()),
	))
	if err != nil {
		return "", fmt.Errorf("component detection failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// ask runs a text prompt; failures are logged and reported inline so the
// rest of the report survives.
func (s *Scanner) ask(ctx context.Context, prompt, step string) string {
	text, err := s.llm.Generate(ctx, ai.Prompt(s.opts.Models.Text, ai.TextPart(prompt)))
	if err != nil {
		s.opts.Logger.Printf("%s failed: %v", step, err)
		return fmt.Sprintf("unavailable (%v)", err)
	}
	return strings.TrimSpace(text)
}

func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image failed: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s failed: %w", filepath.Base(path), err)
	}
	return img, nil
}

// Preprocess resizes to 640×480, converts to gray, blurs and equalises.
func Preprocess(img image.Image) *image.Gray {
	resized := imaging.Resize(img, workWidth, workHeight)
	return imaging.EqualizeHist(imaging.GaussianBlur5(imaging.Grayscale(resized)))
}

// DebugInterfaces returns near-square edge blobs larger than 20 px a
// side, the footprint of pin headers and test-pad clusters.
func DebugInterfaces(edges *image.Gray) []image.Rectangle {
	var out []image.Rectangle
	for _, c := range imaging.FindContours(edges) {
		w, h := c.Bounds.Dx(), c.Bounds.Dy()
		if w <= minInterfaceSide || h <= minInterfaceSide {
			continue
		}
		if ar := c.AspectRatio(); ar > minAspect && ar < maxAspect {
			out = append(out, c.Bounds)
		}
	}
	return out
}

// Clean binarises the segmented image with Otsu, closes small gaps and
// lays the mask over the original.
func Clean(original, segmented image.Image) (*image.Gray, *image.RGBA) {
	binary, _ := imaging.OtsuThreshold(imaging.Grayscale(segmented))
	cleaned := imaging.MorphClose(binary, closeRadius)
	overlay := imaging.Overlay(original, cleaned, overlayOpacity)
	return cleaned, overlay
}

var (
	annotateColor = color.RGBA{R: 255, A: 255}
	listPrefix    = regexp.MustCompile(`^(\s*([-*•]|\d+[.)])\s*)+`)
)

// ComponentLines turns a model answer into short legend lines.
func ComponentLines(components string) []string {
	var lines []string
	for _, raw := range strings.Split(components, "\n") {
		line := strings.TrimSpace(listPrefix.ReplaceAllString(raw, ""))
		line = strings.TrimSpace(strings.ReplaceAll(line, "**", ""))
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// Annotate draws the debug-interface candidates and a component legend.
func Annotate(original *image.RGBA, boxes []image.Rectangle, legend []string) *image.RGBA {
	out := image.NewRGBA(original.Bounds())
	copy(out.Pix, original.Pix)

	for i, r := range boxes {
		imaging.DrawRect(out, r, annotateColor, 2)
		labelY := r.Min.Y - 4
		if labelY < imaging.LabelHeight() {
			labelY = r.Max.Y + imaging.LabelHeight()
		}
		imaging.DrawLabel(out, r.Min.X, labelY, fmt.Sprintf("IF%d", i+1), annotateColor)
	}

	if len(legend) > maxLegendLines {
		legend = append(legend[:maxLegendLines:maxLegendLines], fmt.Sprintf("... %d more", len(legend)-maxLegendLines))
	}
	for i, line := range legend {
		imaging.DrawLabel(out, 8, 8+(i+1)*imaging.LabelHeight(), line, annotateColor)
	}
	return out
}

func scaleBoxes(boxes []image.Rectangle, w, h int) []image.Rectangle {
	sx := float64(w) / workWidth
	sy := float64(h) / workHeight
	out := make([]image.Rectangle, len(boxes))
	for i, r := range boxes {
		out[i] = image.Rect(
			int(float64(r.Min.X)*sx), int(float64(r.Min.Y)*sy),
			int(float64(r.Max.X)*sx), int(float64(r.Max.Y)*sy),
		)
	}
	return out
}
