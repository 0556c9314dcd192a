package encoder

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Pretrained lists model locations, read from the secondary encoder YAML
// (config/pretrained/encoder.yml). Relative paths are resolved against the
// project root.
type Pretrained struct {
	FastTextModelPath string `yaml:"fasttext_model_path"`
	GloveModelPath    string `yaml:"glove_model_path"`
	USEModelPath      string `yaml:"use_model_path"`
	USEDimension      int    `yaml:"use_dimension"`
	ONNXLibraryPath   string `yaml:"onnx_library_path"`
	// WMDModelPath holds the word vectors used for word mover's distance.
	// Defaults to GloveModelPath.
	WMDModelPath string `yaml:"wmd_model_path"`
	// MaxWords caps how many word vectors are loaded from each file.
	MaxWords int `yaml:"max_words"`
}

func LoadPretrained(path, root string) (Pretrained, error) {
	var p Pretrained
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("failed to read pretrained config: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to parse pretrained config %s: %w", path, err)
	}
	p.resolve(root)
	return p, nil
}

func (p *Pretrained) resolve(root string) {
	for _, s := range []*string{&p.FastTextModelPath, &p.GloveModelPath, &p.USEModelPath, &p.ONNXLibraryPath, &p.WMDModelPath} {
		if *s != "" && !filepath.IsAbs(*s) {
			*s = filepath.Join(root, *s)
		}
	}
	if p.WMDModelPath == "" {
		p.WMDModelPath = p.GloveModelPath
	}
}

// FromPretrained builds the named encoder: "fasttext", "glove", or anything
// else for the sentence encoder model.
func FromPretrained(name string, p Pretrained) (Encoder, error) {
	switch name {
	case "fasttext", "glove":
		path, opts := p.GloveModelPath, WordVectorsOptions{Name: name, MaxWords: p.MaxWords}
		if name == "fasttext" {
			path, opts.NormalizeWords = p.FastTextModelPath, true
		}
		wv, err := LoadWordVectors(path, opts)
		if err != nil {
			return nil, err
		}
		return wv, nil
	default:
		if p.USEModelPath == "" {
			return nil, fmt.Errorf("%w: %q has no use_model_path configured", ErrUnknownEncoder, name)
		}
		e, err := NewONNX(ONNXConfig{
			Name:        name,
			ModelPath:   p.USEModelPath,
			LibraryPath: p.ONNXLibraryPath,
			Dimension:   p.USEDimension,
		})
		if err != nil {
			return nil, err
		}
		return e, nil
	}
}

// WMDVectors loads the word vectors used to score rewrites.
func WMDVectors(p Pretrained) (*WordVectors, error) {
	return LoadWordVectors(p.WMDModelPath, WordVectorsOptions{Name: "wmd", MaxWords: p.MaxWords})
}
