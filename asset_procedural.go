package meshview

import (
	"math"
)

// CreateCubeMesh builds an axis-aligned cube centered at the origin with the
// given edge lengths. Faces carry outward normals and full-quad UVs.
func (server *AssetServer) CreateCubeMesh(sizeX, sizeY, sizeZ float32) Mesh {
	hx, hy, hz := sizeX*0.5, sizeY*0.5, sizeZ*0.5

	type face struct {
		corners [4][3]float32
		normal  [3]float32
	}

	faces := []face{
		{ // +Z
			corners: [4][3]float32{{-hx, -hy, hz}, {hx, -hy, hz}, {hx, hy, hz}, {-hx, hy, hz}},
			normal:  [3]float32{0, 0, 1},
		},
		{ // -Z
			corners: [4][3]float32{{hx, -hy, -hz}, {-hx, -hy, -hz}, {-hx, hy, -hz}, {hx, hy, -hz}},
			normal:  [3]float32{0, 0, -1},
		},
		{ // +X
			corners: [4][3]float32{{hx, -hy, hz}, {hx, -hy, -hz}, {hx, hy, -hz}, {hx, hy, hz}},
			normal:  [3]float32{1, 0, 0},
		},
		{ // -X
			corners: [4][3]float32{{-hx, -hy, -hz}, {-hx, -hy, hz}, {-hx, hy, hz}, {-hx, hy, -hz}},
			normal:  [3]float32{-1, 0, 0},
		},
		{ // +Y
			corners: [4][3]float32{{-hx, hy, hz}, {hx, hy, hz}, {hx, hy, -hz}, {-hx, hy, -hz}},
			normal:  [3]float32{0, 1, 0},
		},
		{ // -Y
			corners: [4][3]float32{{-hx, -hy, -hz}, {hx, -hy, -hz}, {hx, -hy, hz}, {-hx, -hy, hz}},
			normal:  [3]float32{0, -1, 0},
		},
	}

	uvs := [4][2]float32{{0, 1}, {1, 1}, {1, 0}, {0, 0}}

	var vertices []MeshVertex
	var indices []uint32

	for _, f := range faces {
		base := uint32(len(vertices))
		for c := 0; c < 4; c++ {
			vertices = append(vertices, MeshVertex{
				Position: f.corners[c],
				TexCoord: uvs[c],
				Normal:   f.normal,
			})
		}
		indices = append(indices, base, base+1, base+2, base, base+2, base+3)
	}

	return server.LoadMesh(vertices, indices)
}

// CreateSphereMesh builds a UV sphere with the given radius. rings and
// segments control the latitude/longitude resolution.
func (server *AssetServer) CreateSphereMesh(radius float32, rings, segments int) Mesh {
	if rings < 3 {
		rings = 3
	}
	if segments < 3 {
		segments = 3
	}

	var vertices []MeshVertex
	var indices []uint32

	for r := 0; r <= rings; r++ {
		phi := math.Pi * float64(r) / float64(rings)
		y := float32(math.Cos(phi))
		ringRadius := float32(math.Sin(phi))

		for s := 0; s <= segments; s++ {
			theta := 2 * math.Pi * float64(s) / float64(segments)
			x := ringRadius * float32(math.Cos(theta))
			z := ringRadius * float32(math.Sin(theta))

			vertices = append(vertices, MeshVertex{
				Position: [3]float32{x * radius, y * radius, z * radius},
				TexCoord: [2]float32{float32(s) / float32(segments), float32(r) / float32(rings)},
				Normal:   [3]float32{x, y, z},
			})
		}
	}

	stride := uint32(segments + 1)
	for r := 0; r < rings; r++ {
		for s := 0; s < segments; s++ {
			i0 := uint32(r)*stride + uint32(s)
			i1 := i0 + 1
			i2 := i0 + stride
			i3 := i2 + 1
			indices = append(indices, i0, i2, i1, i1, i2, i3)
		}
	}

	return server.LoadMesh(vertices, indices)
}

// CreateGridMesh builds a flat XZ grid of cells*cells quads spanning
// size×size units, centered at the origin. Useful as a ground reference.
func (server *AssetServer) CreateGridMesh(size float32, cells int) Mesh {
	if cells < 1 {
		cells = 1
	}

	var vertices []MeshVertex
	var indices []uint32

	half := size * 0.5
	step := size / float32(cells)

	for z := 0; z <= cells; z++ {
		for x := 0; x <= cells; x++ {
			fx := -half + float32(x)*step
			fz := -half + float32(z)*step
			vertices = append(vertices, MeshVertex{
				Position: [3]float32{fx, 0, fz},
				TexCoord: [2]float32{float32(x) / float32(cells), float32(z) / float32(cells)},
				Normal:   [3]float32{0, 1, 0},
			})
		}
	}

	stride := uint32(cells + 1)
	for z := 0; z < cells; z++ {
		for x := 0; x < cells; x++ {
			i0 := uint32(z)*stride + uint32(x)
			i1 := i0 + 1
			i2 := i0 + stride
			i3 := i2 + 1
			indices = append(indices, i0, i2, i1, i1, i2, i3)
		}
	}

	return server.LoadMesh(vertices, indices)
}
