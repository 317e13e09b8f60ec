package ml

import (
	"fmt"

	onnxruntime "github.com/yalue/onnxruntime_go"

	"adaptive-trader/internal/features"
	"adaptive-trader/internal/regime"
)

// featureOrder fixes the input layout the model was trained with.
var featureOrder = []string{
	features.FeatureVolatility,
	features.FeatureTrend,
	features.FeatureBandWidth,
	features.FeatureDirectional,
	features.FeatureVolumeRatio,
}

// classOrder maps model output index to regime label.
var classOrder = []regime.Label{
	regime.TrendingUp,
	regime.TrendingDown,
	regime.Ranging,
	regime.Volatile,
	regime.Quiet,
}

// Classifier runs regime inference against an ONNX model. It satisfies
// regime.Classifier; any error it returns makes the detector fall back to
// the rule cascade for that call.
type Classifier struct {
	session *onnxruntime.DynamicAdvancedSession
}

// LoadClassifier loads the model at path. The runtime environment is
// initialized on first load.
func LoadClassifier(modelPath string) (*Classifier, error) {
	if err := onnxruntime.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize onnx runtime: %w", err)
	}

	options, err := onnxruntime.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	session, err := onnxruntime.NewDynamicAdvancedSession(modelPath,
		[]string{"input"}, []string{"probabilities"}, options)
	if err != nil {
		return nil, fmt.Errorf("failed to load regime model %s: %w", modelPath, err)
	}

	return &Classifier{session: session}, nil
}

// Classify runs one inference pass and returns the highest-probability label.
func (c *Classifier) Classify(v features.Vector) (regime.Label, error) {
	if c.session == nil {
		return regime.Unknown, fmt.Errorf("classifier session is closed")
	}

	input := make([]float32, len(featureOrder))
	for i, name := range featureOrder {
		input[i] = float32(v[name])
	}

	inputTensor, err := onnxruntime.NewTensor(onnxruntime.NewShape(1, int64(len(input))), input)
	if err != nil {
		return regime.Unknown, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	probs := make([]float32, len(classOrder))
	probTensor, err := onnxruntime.NewTensor(onnxruntime.NewShape(1, int64(len(classOrder))), probs)
	if err != nil {
		return regime.Unknown, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer probTensor.Destroy()

	if err := c.session.Run([]onnxruntime.Value{inputTensor}, []onnxruntime.Value{probTensor}); err != nil {
		return regime.Unknown, fmt.Errorf("inference failed: %w", err)
	}

	best := 0
	out := probTensor.GetData()
	for i := range out {
		if out[i] > out[best] {
			best = i
		}
	}
	return classOrder[best], nil
}

// Close releases the underlying session.
func (c *Classifier) Close() {
	if c.session != nil {
		c.session.Destroy()
		c.session = nil
	}
}
