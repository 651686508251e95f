package trace

import (
	"github.com/banshee-data/lineage/internal/lineage"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/plot/palette"
)

// Ruler is one reconstructed lineage trail as a polyline of vertex centers.
// ID is the vertex id at the tip, so a walk that continues from the tip
// extends the same Ruler.
type Ruler struct {
	ID     lineage.VertexID
	Points []r3.Vec
	Frames []int // frame of each point
	Lead   bool  // true when the trail runs forward in time
}

func newRuler(id lineage.VertexID, at r3.Vec, frame int, lead bool) *Ruler {
	return &Ruler{
		ID:     id,
		Points: []r3.Vec{at},
		Frames: []int{frame},
		Lead:   lead,
	}
}

// Len returns the number of points.
func (r *Ruler) Len() int { return len(r.Points) }

// TipFrame returns the frame of the last point.
func (r *Ruler) TipFrame() int { return r.Frames[len(r.Frames)-1] }

// Length returns the path length of the polyline.
func (r *Ruler) Length() float64 {
	var d float64
	for i := 1; i < len(r.Points); i++ {
		d += r3.Norm(r3.Sub(r.Points[i], r.Points[i-1]))
	}
	return d
}

func (r *Ruler) extend(id lineage.VertexID, at r3.Vec, frame int) {
	r.ID = id
	r.Points = append(r.Points, at)
	r.Frames = append(r.Frames, frame)
}

// branch copies the ruler without its last point, for a second child of the
// vertex the ruler was just extended from.
func (r *Ruler) branch() *Ruler {
	n := len(r.Points) - 1
	return &Ruler{
		Points: append([]r3.Vec(nil), r.Points[:n]...),
		Frames: append([]int(nil), r.Frames[:n]...),
		Lead:   r.Lead,
	}
}

// floatsPerVertex is the stride of the Draw buffer: x y z r g b.
const floatsPerVertex = 6

// Segment is one line of a flat Draw buffer.
type Segment struct {
	From, To r3.Vec
	Color    [3]float32
}

// Segments decodes a Draw buffer into segments. A trailing partial segment
// is ignored.
func Segments(verts []float32) []Segment {
	const stride = 2 * floatsPerVertex
	out := make([]Segment, 0, len(verts)/stride)
	for i := 0; i+stride <= len(verts); i += stride {
		v := verts[i : i+stride]
		out = append(out, Segment{
			From:  r3.Vec{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])},
			To:    r3.Vec{X: float64(v[6]), Y: float64(v[7]), Z: float64(v[8])},
			Color: [3]float32{v[9], v[10], v[11]},
		})
	}
	return out
}

// CellColor returns the trail colour of a cell id. Equal ids and shuffle
// values always give the same colour; changing shuffle recolours every id.
func CellColor(id lineage.CellID, shuffle uint32) [3]float32 {
	h := uint32(id)*2654435761 + shuffle*40503
	h ^= h >> 15
	hue := float64(h%360) / 360
	r, g, b, _ := palette.HSVA{H: hue, S: 0.8, V: 1, A: 1}.RGBA()
	return [3]float32{float32(r) / 0xffff, float32(g) / 0xffff, float32(b) / 0xffff}
}

func appendVertex(verts []float32, at r3.Vec, c [3]float32) []float32 {
	return append(verts, float32(at.X), float32(at.Y), float32(at.Z), c[0], c[1], c[2])
}
