// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"reflect"
	"strconv"
	"unsafe"

	jsoniter "github.com/json-iterator/go"
)

// json is a jsoniter API configured the same way server/jsoniter.go
// configures the game server's codec, with custom encoders that render
// VertexID/SimplexID as compact hex strings instead of decimal numbers
// (mirrors encodeEntityID/emptyEntityID there), so diagnostic dumps stay
// small even for triangulations with millions of simplices.
var json = func() jsoniter.API {
	jsoniter.RegisterTypeEncoderFunc(reflect.TypeOf(VertexID(0)).String(), encodeVertexID, neverEmpty)
	jsoniter.RegisterTypeEncoderFunc(reflect.TypeOf(SimplexID(0)).String(), encodeSimplexID, neverEmpty)

	return jsoniter.Config{
		IndentionStep:    0,
		EscapeHTML:       false,
		SortMapKeys:      true,
		ObjectFieldMustBeSimpleString: true,
	}.Froze()
}()

func neverEmpty(unsafe.Pointer) bool { return false }

func encodeVertexID(ptr unsafe.Pointer, stream *jsoniter.Stream) {
	id := *(*VertexID)(ptr)
	stream.SetBuffer(append(strconv.AppendUint(append(stream.Buffer(), '"'), uint64(id), 16), '"'))
}

func encodeSimplexID(ptr unsafe.Pointer, stream *jsoniter.Stream) {
	id := *(*SimplexID)(ptr)
	stream.SetBuffer(append(strconv.AppendUint(append(stream.Buffer(), '"'), uint64(id), 16), '"'))
}

// diagnosticSimplex/diagnosticVertex are the plain (non-pointer-map)
// shapes MarshalDiagnostics renders, so jsoniter sees ordinary struct
// fields rather than walking the Store's internal shard locks.
type diagnosticSimplex struct {
	ID        SimplexID   `json:"id"`
	Vertices  []VertexID  `json:"vertices"`
	Center    []float64   `json:"center"`
	Radius    float64     `json:"radius"`
	Neighbors []SimplexID `json:"neighbors"`
	Ghost     bool        `json:"ghost"`
}

type diagnosticVertex struct {
	ID          VertexID  `json:"id"`
	Coordinates []float64 `json:"coordinates"`
	Ghost       bool      `json:"ghost"`
}

type diagnosticDump struct {
	Vertices []diagnosticVertex `json:"vertices"`
	Simplices []diagnosticSimplex `json:"simplices"`
}

// MarshalDiagnostics renders a snapshot of every live vertex and simplex
// as compact JSON, for manual inspection -- spec.md's "optionally the first counterexample for
// diagnostics" (S6) generalized to a full-store dump.
func (s *Store) MarshalDiagnostics() ([]byte, error) {
	dump := diagnosticDump{}
	s.ForEachVertex(func(id VertexID, v Vertex) {
		dump.Vertices = append(dump.Vertices, diagnosticVertex{ID: id, Coordinates: v.Coordinates, Ghost: v.Ghost})
	})
	s.ForEachSimplex(func(id SimplexID, simplex Simplex) {
		dump.Simplices = append(dump.Simplices, diagnosticSimplex{
			ID:        id,
			Vertices:  simplex.Vertices,
			Center:    simplex.Center,
			Radius:    simplex.Radius,
			Neighbors: simplex.Neighbors,
			Ghost:     simplex.Ghost,
		})
	})
	return json.Marshal(dump)
}
