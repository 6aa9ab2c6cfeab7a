package vectordb

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func makeVectors(n int) []Vector {
	vectors := make([]Vector, n)
	for i := range vectors {
		vectors[i] = Vector{ID: fmt.Sprintf("v%d", i), Values: []float32{float32(i)}}
	}
	return vectors
}

func TestToChunks(t *testing.T) {
	chunks := toChunks(makeVectors(1201), 500)
	assert.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 500)
	assert.Len(t, chunks[1], 500)
	assert.Len(t, chunks[2], 201)
	assert.Equal(t, "v0", chunks[0][0].ID)
	assert.Equal(t, "v1200", chunks[2][200].ID)
}

func TestToChunksExactMultiple(t *testing.T) {
	chunks := toChunks(makeVectors(1000), 500)
	assert.Len(t, chunks, 2)
	assert.Len(t, chunks[1], 500)
}

func TestToChunksSmallInput(t *testing.T) {
	chunks := toChunks(makeVectors(3), 500)
	assert.Len(t, chunks, 1)
	assert.Len(t, chunks[0], 3)
}

func TestToChunksEmpty(t *testing.T) {
	assert.Nil(t, toChunks(nil, 500))
	assert.Nil(t, toChunks(makeVectors(5), 0))
}
