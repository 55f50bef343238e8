package embedding

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/matsen/paperrec/internal/tokenize"
)

// Input and output tensor names of the sentence-transformers ONNX export.
const (
	inputIDsName      = "input_ids"
	attentionMaskName = "attention_mask"
	tokenTypeIDsName  = "token_type_ids"

	// DefaultOutputName is the per-token hidden state output.
	DefaultOutputName = "last_hidden_state"
)

// envMu serializes onnxruntime environment setup.
var envMu sync.Mutex

// ONNXGraph runs an ONNX transformer encoder through onnxruntime.
// The session is created once and only read afterwards; every Run allocates
// its own tensors, so concurrent calls are safe.
type ONNXGraph struct {
	session *ort.DynamicAdvancedSession
	dims    int
}

// LoadONNXGraph initializes the onnxruntime environment (once per process) and
// opens the model at modelPath. runtimeLibrary is the path to the onnxruntime
// shared library; empty uses the library's default lookup.
func LoadONNXGraph(modelPath, runtimeLibrary string, dims int) (*ONNXGraph, error) {
	envMu.Lock()
	defer envMu.Unlock()

	if !ort.IsInitialized() {
		if runtimeLibrary != "" {
			ort.SetSharedLibraryPath(runtimeLibrary)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initializing onnxruntime: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{inputIDsName, attentionMaskName, tokenTypeIDsName},
		[]string{DefaultOutputName},
		nil)
	if err != nil {
		return nil, fmt.Errorf("opening model %s: %w", modelPath, err)
	}

	return &ONNXGraph{session: session, dims: dims}, nil
}

// Run executes the graph on one sequence and returns a copy of its hidden states.
func (g *ONNXGraph) Run(enc tokenize.Encoding) ([]float32, error) {
	seqLen := int64(enc.Len())
	shape := ort.NewShape(1, seqLen)

	ids, err := ort.NewTensor(shape, enc.InputIDs)
	if err != nil {
		return nil, fmt.Errorf("creating %s tensor: %w", inputIDsName, err)
	}
	defer ids.Destroy()

	mask, err := ort.NewTensor(shape, enc.AttentionMask)
	if err != nil {
		return nil, fmt.Errorf("creating %s tensor: %w", attentionMaskName, err)
	}
	defer mask.Destroy()

	types, err := ort.NewTensor(shape, enc.TokenTypeIDs)
	if err != nil {
		return nil, fmt.Errorf("creating %s tensor: %w", tokenTypeIDsName, err)
	}
	defer types.Destroy()

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, seqLen, int64(g.dims)))
	if err != nil {
		return nil, fmt.Errorf("creating output tensor: %w", err)
	}
	defer out.Destroy()

	if err := g.session.Run([]ort.Value{ids, mask, types}, []ort.Value{out}); err != nil {
		return nil, err
	}

	// The tensor's memory is freed by Destroy, so hand back a copy.
	data := out.GetData()
	hidden := make([]float32, len(data))
	copy(hidden, data)
	return hidden, nil
}

// Close releases the session.
func (g *ONNXGraph) Close() error {
	if g.session == nil {
		return nil
	}
	return g.session.Destroy()
}
