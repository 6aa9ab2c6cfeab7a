package vectordb

// upsertBatchSize is the largest vector batch sent to any provider in one
// call. Pinecone rejects oversized upserts outright and the HTTP providers
// degrade badly, so every adapter slices through toChunks first.
const upsertBatchSize = 500

// toChunks splits vectors into batches of at most size elements.
func toChunks(vectors []Vector, size int) [][]Vector {
	if size <= 0 || len(vectors) == 0 {
		return nil
	}
	chunks := make([][]Vector, 0, (len(vectors)+size-1)/size)
	for start := 0; start < len(vectors); start += size {
		end := start + size
		if end > len(vectors) {
			end = len(vectors)
		}
		chunks = append(chunks, vectors[start:end])
	}
	return chunks
}
