package serial_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/mkoval/dirindex/serial"
	"github.com/mkoval/dirindex/types"
)

func sampleTree() *types.FileNode {
	return &types.FileNode{
		Name:         "project",
		Type:         types.NodeTypeDirectory,
		SizeBytes:    1535,
		IgnoredBytes: 1500,
		Children: []*types.FileNode{
			{Name: "a.txt", Type: types.NodeTypeFile, SizeBytes: 10},
			{Name: "b.txt", Type: types.NodeTypeFile, SizeBytes: 20},
			{
				Name:      "sub",
				Type:      types.NodeTypeDirectory,
				SizeBytes: 5,
				Children: []*types.FileNode{
					{Name: "c.txt", Type: types.NodeTypeFile, SizeBytes: 5},
				},
			},
		},
	}
}

func TestSerializeRoundTrip(testingHandle *testing.T) {
	originalTree := sampleTree()
	payload, serializeError := serial.Serialize(originalTree)
	if serializeError != nil {
		testingHandle.Fatalf("Serialize error: %v", serializeError)
	}
	decodedTree, deserializeError := serial.Deserialize(payload)
	if deserializeError != nil {
		testingHandle.Fatalf("Deserialize error: %v", deserializeError)
	}
	if !originalTree.Equal(decodedTree) {
		testingHandle.Fatalf("round trip changed the tree")
	}
}

func TestSerializeNilTree(testingHandle *testing.T) {
	if _, serializeError := serial.Serialize(nil); serializeError == nil {
		testingHandle.Fatalf("expected error for nil tree")
	}
}

func TestDeserializeVersionMismatch(testingHandle *testing.T) {
	payload, serializeError := serial.Serialize(sampleTree())
	if serializeError != nil {
		testingHandle.Fatalf("Serialize error: %v", serializeError)
	}
	bumpedPayload := strings.Replace(string(payload), `"version":1`, `"version":99`, 1)
	_, deserializeError := serial.Deserialize([]byte(bumpedPayload))
	if !errors.Is(deserializeError, serial.ErrVersionMismatch) {
		testingHandle.Fatalf("expected ErrVersionMismatch, got %v", deserializeError)
	}
}

func TestDeserializeTruncatedPayload(testingHandle *testing.T) {
	payload, serializeError := serial.Serialize(sampleTree())
	if serializeError != nil {
		testingHandle.Fatalf("Serialize error: %v", serializeError)
	}
	truncatedPayload := payload[:len(payload)/2]
	_, deserializeError := serial.Deserialize(truncatedPayload)
	if !errors.Is(deserializeError, serial.ErrCorrupt) {
		testingHandle.Fatalf("expected ErrCorrupt, got %v", deserializeError)
	}
}

func TestDeserializeGarbage(testingHandle *testing.T) {
	_, deserializeError := serial.Deserialize([]byte("not json at all"))
	if !errors.Is(deserializeError, serial.ErrCorrupt) {
		testingHandle.Fatalf("expected ErrCorrupt, got %v", deserializeError)
	}
}

func TestDeserializeMissingRoot(testingHandle *testing.T) {
	_, deserializeError := serial.Deserialize([]byte(`{"version":1}`))
	if !errors.Is(deserializeError, serial.ErrCorrupt) {
		testingHandle.Fatalf("expected ErrCorrupt for missing root, got %v", deserializeError)
	}
}

func TestDeserializeRejectsFileWithChildren(testingHandle *testing.T) {
	malformedPayload := `{"version":1,"root":{"name":"f","type":"file","sizeBytes":1,"children":[{"name":"x","type":"file","sizeBytes":0}]}}`
	_, deserializeError := serial.Deserialize([]byte(malformedPayload))
	if !errors.Is(deserializeError, serial.ErrCorrupt) {
		testingHandle.Fatalf("expected ErrCorrupt for file with children, got %v", deserializeError)
	}
}

func TestDeserializeRejectsDuplicateChildNames(testingHandle *testing.T) {
	malformedPayload := `{"version":1,"root":{"name":"d","type":"directory","sizeBytes":2,"children":[` +
		`{"name":"same","type":"file","sizeBytes":1},{"name":"same","type":"file","sizeBytes":1}]}}`
	_, deserializeError := serial.Deserialize([]byte(malformedPayload))
	if !errors.Is(deserializeError, serial.ErrCorrupt) {
		testingHandle.Fatalf("expected ErrCorrupt for duplicate child names, got %v", deserializeError)
	}
}
