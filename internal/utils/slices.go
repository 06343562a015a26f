package utils

// Chunk returns a slice of elements split into groups the length of chunkSize. If the provided collection can't be split evenly,
// then the final chunk will be the residual elements.
func Chunk[T any](collection []T, chunkSize int) [][]T {
	if chunkSize <= 0 {
		panic("chunkSize parameter must be greater than 0")
	}

	numChunks := len(collection) / chunkSize
	if len(collection)%chunkSize != 0 {
		numChunks++
	}

	result := make([][]T, 0, numChunks)

	for i := 0; i < numChunks; i++ {
		last := (i + 1) * chunkSize
		if last > len(collection) {
			last = len(collection)
		}

		result = append(result, collection[i*chunkSize:last])
	}

	return result
}
