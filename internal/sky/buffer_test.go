package sky

import (
	"encoding/json"
	"testing"

	"github.com/talgya/hexsky/internal/entropy"
)

func TestTileBufferBounds(t *testing.T) {
	b := NewTileBuffer(3, 2)
	if b.Len() != 6 {
		t.Fatalf("Len() = %d, want 6", b.Len())
	}

	oob := [][2]int{{-1, 0}, {0, -1}, {3, 0}, {0, 2}, {10, 10}}
	for _, p := range oob {
		if b.InBounds(p[0], p[1]) {
			t.Errorf("InBounds(%d, %d) = true", p[0], p[1])
		}
		if b.Set(p[0], p[1], 4) {
			t.Errorf("Set(%d, %d) = true outside the buffer", p[0], p[1])
		}
		if _, ok := b.At(p[0], p[1]); ok {
			t.Errorf("At(%d, %d) ok outside the buffer", p[0], p[1])
		}
	}
	for _, v := range b.cells {
		if v != 0 {
			t.Fatal("out-of-bounds Set changed a cell")
		}
	}
}

func TestTileBufferRowMajor(t *testing.T) {
	b := NewTileBuffer(3, 2)
	if !b.Set(2, 1, 7) {
		t.Fatal("Set(2, 1) failed")
	}
	if v, ok := b.At(2, 1); !ok || v != 7 {
		t.Errorf("At(2, 1) = %d, %v", v, ok)
	}
	if b.cells[1*3+2] != 7 {
		t.Errorf("cell index 5 = %d, want 7", b.cells[5])
	}

	snap := b.Snapshot()
	if len(snap) != 2 || len(snap[0]) != 3 || snap[1][2] != 7 {
		t.Errorf("Snapshot() = %v", snap)
	}
	snap[1][2] = 1
	if v, _ := b.At(2, 1); v != 7 {
		t.Error("Snapshot shares storage with the buffer")
	}
}

func TestTileBufferFill(t *testing.T) {
	b := NewTileBuffer(4, 4)
	b.Fill(entropy.NewSequence(0, 1, 2, 3), 4)
	counts := b.Count(4)
	for v, n := range counts {
		if n != 4 {
			t.Errorf("variant %d appears %d times, want 4", v, n)
		}
	}
}

func TestSnapshotEncodesNumbers(t *testing.T) {
	b := NewTileBuffer(2, 1)
	b.Set(1, 0, 200)
	out, err := json.Marshal(b.Snapshot())
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "[[0,200]]" {
		t.Errorf("json = %s, want [[0,200]]", out)
	}
}
