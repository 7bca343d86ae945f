package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if math.Abs(sum-1.0) > 1e-6 {
		t.Errorf("Expected unit norm, got %v", sum)
	}

	zero := Normalize([]float32{0, 0, 0})
	for _, x := range zero {
		if x != 0 {
			t.Error("Zero vector should stay zero")
		}
	}
}

func TestCosineSimilarity(t *testing.T) {
	sim, err := CosineSimilarity([]float32{1, 0}, []float32{1, 0})
	if err != nil {
		t.Fatalf("CosineSimilarity failed: %v", err)
	}
	if math.Abs(sim-1.0) > 1e-6 {
		t.Errorf("Expected similarity 1.0, got %v", sim)
	}

	sim, err = CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	if err != nil {
		t.Fatalf("CosineSimilarity failed: %v", err)
	}
	if math.Abs(sim) > 1e-6 {
		t.Errorf("Expected orthogonal similarity 0, got %v", sim)
	}

	if _, err := CosineSimilarity([]float32{1}, []float32{1, 2}); err == nil {
		t.Error("Expected dimension mismatch error")
	}
}

func TestDotEqualsCosineForUnitVectors(t *testing.T) {
	a := Normalize([]float32{0.3, 0.9, 0.1, 0.2})
	b := Normalize([]float32{0.1, 0.8, 0.4, 0.3})

	cos, err := CosineSimilarity(a, b)
	if err != nil {
		t.Fatalf("CosineSimilarity failed: %v", err)
	}
	if math.Abs(cos-Dot(a, b)) > 1e-6 {
		t.Errorf("Dot %v != cosine %v on unit vectors", Dot(a, b), cos)
	}
}

func TestOllamaEngineEmbed(t *testing.T) {
	vec := make([]float32, Dimensions)
	vec[0] = 2

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		if req["model"] != "all-minilm" {
			t.Errorf("Unexpected model %q", req["model"])
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"embedding": vec})
	}))
	defer server.Close()

	engine, err := NewOllamaEngine(server.URL, "")
	if err != nil {
		t.Fatalf("NewOllamaEngine failed: %v", err)
	}

	got, err := engine.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(got) != Dimensions {
		t.Fatalf("Expected %d dims, got %d", Dimensions, len(got))
	}
	if math.Abs(float64(got[0])-1.0) > 1e-6 {
		t.Errorf("Expected normalized first component 1.0, got %v", got[0])
	}
}

func TestOllamaEngineRejectsWrongDimensions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"embedding": []float32{1, 2, 3}})
	}))
	defer server.Close()

	engine, _ := NewOllamaEngine(server.URL, "")
	if _, err := engine.Embed(context.Background(), "hello"); err == nil {
		t.Error("Expected dimension mismatch error")
	}
}

func TestOllamaEngineServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	engine, _ := NewOllamaEngine(server.URL, "")
	if _, err := engine.Embed(context.Background(), "hello"); err == nil {
		t.Error("Expected error from server failure")
	}
}
