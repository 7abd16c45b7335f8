package artifact

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/ApplesHUFS/AAC-Software-sub001/internal/models"
)

// WriteEmbeddings persists fused embeddings to path. Records are sorted by
// image ID before writing. Format: dimension (4), n (4), then per record:
// idLen (4), id bytes, labelLen (4), label bytes, vector (dimension*4 bytes),
// all little-endian.
func WriteEmbeddings(path string, dimensions int, embeddings []models.FusedEmbedding) error {
	sorted := make([]models.FusedEmbedding, len(embeddings))
	copy(sorted, embeddings)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ImageID < sorted[j].ImageID })

	return writeAtomic(path, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		if err := binary.Write(bw, binary.LittleEndian, uint32(dimensions)); err != nil {
			return fmt.Errorf("write dimensions: %w", err)
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(sorted))); err != nil {
			return fmt.Errorf("write count: %w", err)
		}
		for _, e := range sorted {
			if len(e.Vector) != dimensions {
				return fmt.Errorf("embedding %s has %d dimensions, expected %d", e.ImageID, len(e.Vector), dimensions)
			}
			if err := writeString(bw, e.ImageID); err != nil {
				return fmt.Errorf("write id: %w", err)
			}
			if err := writeString(bw, e.Label); err != nil {
				return fmt.Errorf("write label: %w", err)
			}
			if _, err := bw.Write(float32SliceToBytes(e.Vector)); err != nil {
				return fmt.Errorf("write vector: %w", err)
			}
		}
		return bw.Flush()
	})
}

// ReadEmbeddings loads the embeddings artifact at path.
func ReadEmbeddings(path string) ([]models.FusedEmbedding, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open embeddings artifact: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, 0, fmt.Errorf("read dimensions: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, 0, fmt.Errorf("read count: %w", err)
	}

	embeddings := make([]models.FusedEmbedding, 0, n)
	buf := make([]byte, int(dim)*4)
	for i := uint32(0); i < n; i++ {
		id, err := readString(r)
		if err != nil {
			return nil, 0, fmt.Errorf("read id: %w", err)
		}
		label, err := readString(r)
		if err != nil {
			return nil, 0, fmt.Errorf("read label: %w", err)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, 0, fmt.Errorf("read vector for %s: %w", id, err)
		}
		embeddings = append(embeddings, models.FusedEmbedding{
			ImageID: id,
			Label:   label,
			Vector:  bytesToFloat32Slice(buf),
		})
	}
	return embeddings, int(dim), nil
}

func writeString(w io.Writer, s string) error {
	b := []byte(s)
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
