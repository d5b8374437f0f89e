package entropy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSeededDeterministic(t *testing.T) {
	a := NewSeeded(42)
	b := NewSeeded(42)
	for i := 0; i < 200; i++ {
		va, vb := a.IntN(8), b.IntN(8)
		if va != vb {
			t.Fatalf("draw %d: %d != %d", i, va, vb)
		}
		if va < 0 || va >= 8 {
			t.Fatalf("draw %d: %d out of [0, 8)", i, va)
		}
	}
}

func TestSequence(t *testing.T) {
	s := NewSequence(7, 6, 9, -1)
	want := []int{7, 6, 1, 7, 7}
	for i, w := range want {
		if got := s.IntN(8); got != w {
			t.Errorf("draw %d = %d, want %d", i, got, w)
		}
	}
	if s.Drawn() != len(want) {
		t.Errorf("Drawn() = %d, want %d", s.Drawn(), len(want))
	}

	var empty Sequence
	if got := empty.IntN(8); got != 0 {
		t.Errorf("empty sequence = %d, want 0", got)
	}
}

func TestScaleBounds(t *testing.T) {
	tests := []struct {
		u    float64
		n    int
		want int
	}{
		{0, 8, 0},
		{0.999999, 8, 7},
		{1, 8, 7},
		{0.5, 8, 4},
		{0.7, 1, 0},
		{-0.1, 8, 0},
	}
	for _, tt := range tests {
		if got := scale(tt.u, tt.n); got != tt.want {
			t.Errorf("scale(%f, %d) = %d, want %d", tt.u, tt.n, got, tt.want)
		}
	}
}

func TestNilClientFallsBack(t *testing.T) {
	var c *Client
	if NewClient("") != nil {
		t.Fatal("NewClient(\"\") should return nil")
	}
	for i := 0; i < 50; i++ {
		if v := c.IntN(8); v < 0 || v >= 8 {
			t.Fatalf("nil client IntN = %d", v)
		}
	}
	if c.Pooled() != 0 {
		t.Errorf("nil client Pooled() = %d", c.Pooled())
	}
}

func TestCryptoRange(t *testing.T) {
	var c Crypto
	for i := 0; i < 100; i++ {
		if v := c.IntN(3); v < 0 || v >= 3 {
			t.Fatalf("Crypto.IntN(3) = %d", v)
		}
	}
}

func TestClientUsesPool(t *testing.T) {
	data := make([]float64, 100)
	for i := range data {
		data[i] = float64(i%8) / 8
	}
	data[0] = 1 // dropped: outside [0, 1)

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["method"] != "generateDecimalFractions" {
			t.Errorf("method = %v", req["method"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{
				"random": map[string]any{"data": data},
			},
		})
	}))
	defer srv.Close()

	c := NewClient("key")
	c.endpoint = srv.URL

	// First value in the pool is data[1] = 1/8.
	if got := c.IntN(8); got != 1 {
		t.Errorf("first IntN = %d, want 1", got)
	}
	if got := c.IntN(8); got != 2 {
		t.Errorf("second IntN = %d, want 2", got)
	}
	if calls != 1 {
		t.Errorf("API calls = %d, want 1", calls)
	}
	if c.Pooled() != 97 {
		t.Errorf("Pooled() = %d, want 97", c.Pooled())
	}
}

func TestClientAPIErrorFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
	}))
	defer srv.Close()

	c := NewClient("key")
	c.endpoint = srv.URL
	if v := c.IntN(8); v < 0 || v >= 8 {
		t.Errorf("IntN = %d, want value in [0, 8)", v)
	}
	if c.Pooled() != 0 {
		t.Errorf("Pooled() = %d after API error, want 0", c.Pooled())
	}
}
