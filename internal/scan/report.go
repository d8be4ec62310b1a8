package scan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"pcbrecon/internal/segment"
	"pcbrecon/internal/vision"
)

type Format string

const (
	FormatText Format = "text"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatText:
		return FormatText, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported report format %q", s)
	}
}

// Extension is the file suffix for reports in format f.
func (f Format) Extension() string {
	switch f {
	case FormatYAML:
		return ".yaml"
	case FormatJSON:
		return ".json"
	default:
		return ".txt"
	}
}

type Box struct {
	X      int `json:"x" yaml:"x"`
	Y      int `json:"y" yaml:"y"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

type Report struct {
	Source           string              `json:"source" yaml:"source"`
	GeneratedAt      time.Time           `json:"generated_at" yaml:"generated_at"`
	Width            int                 `json:"width" yaml:"width"`
	Height           int                 `json:"height" yaml:"height"`
	Components       string              `json:"components" yaml:"components"`
	DebugInterfaces  []Box               `json:"debug_interfaces" yaml:"debug_interfaces"`
	Segmentation     segment.Selection   `json:"segmentation" yaml:"segmentation"`
	Microcontroller  string              `json:"microcontroller" yaml:"microcontroller"`
	SecurityAnalysis string              `json:"security_analysis" yaml:"security_analysis"`
	Classification   []vision.LabelScore `json:"classification,omitempty" yaml:"classification,omitempty"`
	Artefacts        map[string]string   `json:"artefacts,omitempty" yaml:"artefacts,omitempty"`
}

var textReport = template.Must(template.New("report").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(`PCB Analysis Report: {{.Source}}
--------------------
1. Detected Components:
{{.Components}}

2. Identified Microcontroller:
{{.Microcontroller}}

3. Security Analysis:
{{.SecurityAnalysis}}

4. Debug Interface Candidates (640x480 frame):
{{- range $i, $b := .DebugInterfaces}}
   IF{{inc $i}}: x={{$b.X}} y={{$b.Y}} w={{$b.Width}} h={{$b.Height}}
{{- else}}
   none
{{- end}}

5. Colour Segmentation:
   clusters={{.Segmentation.K}} elbow={{.Segmentation.ElbowK}} silhouette={{.Segmentation.SilhouetteK}}
{{- if .Classification}}

6. Board Classification:
{{- range .Classification}}
   {{.Label}} ({{printf "%.3f" .Probability}})
{{- end}}
{{- end}}
{{- if .Artefacts}}

Artefacts:
{{- range $name, $path := .Artefacts}}
   {{$name}}: {{$path}}
{{- end}}
{{- end}}
`))

// Render encodes the report in format f.
func (r *Report) Render(f Format) ([]byte, error) {
	switch f {
	case FormatJSON:
		return json.MarshalIndent(r, "", "  ")
	case FormatYAML:
		return yaml.Marshal(r)
	case FormatText, "":
		var buf bytes.Buffer
		if err := textReport.Execute(&buf, r); err != nil {
			return nil, fmt.Errorf("render text report failed: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported report format %q", f)
	}
}

// WriteArtefacts saves every image of res as PNG under dir and records the
// paths on the report.
func WriteArtefacts(dir string, res *Result) (map[string]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir failed: %w", err)
	}
	images := map[string]image.Image{
		"edges":     res.Images.Edges,
		"segmented": res.Images.Segmented,
		"cleaned":   res.Images.Cleaned,
		"overlay":   res.Images.Overlay,
		"annotated": res.Images.Annotated,
	}
	paths := make(map[string]string, len(images))
	for name, img := range images {
		if img == nil || img.Bounds().Empty() {
			continue
		}
		path := filepath.Join(dir, name+".png")
		if err := writePNG(path, img); err != nil {
			return nil, err
		}
		paths[name] = path
	}
	res.Report.Artefacts = paths
	return paths, nil
}

// WriteReport renders the report into dir/report.<ext> and returns the path.
func WriteReport(dir string, r *Report, f Format) (string, error) {
	data, err := r.Render(f)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir failed: %w", err)
	}
	path := filepath.Join(dir, "report"+f.Extension())
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report failed: %w", err)
	}
	return path, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s failed: %w", filepath.Base(path), err)
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s failed: %w", filepath.Base(path), err)
	}
	return f.Close()
}

func toBoxes(rects []image.Rectangle) []Box {
	boxes := make([]Box, 0, len(rects))
	for _, r := range rects {
		boxes = append(boxes, Box{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()})
	}
	return boxes
}
