package meshview

import (
	"github.com/google/uuid"
)

type AssetId string

type AssetServer struct {
	meshes map[AssetId]MeshAsset
}

type AssetServerModule struct{}

// Mesh is a lightweight handle to a MeshAsset held by the asset server.
type Mesh struct {
	assetId AssetId
}

func (m Mesh) AssetId() AssetId { return m.assetId }

// MeshVertex is the per-vertex layout shared by every mesh pipeline.
type MeshVertex struct {
	Position [3]float32 `gpu:"layout" format:"float32x3" location:"0"`
	TexCoord [2]float32 `gpu:"layout" format:"float32x2" location:"1"`
	Normal   [3]float32 `gpu:"layout" format:"float32x3" location:"2"`
}

type MeshAsset struct {
	version     uint
	vertices    []MeshVertex
	indices     []uint32
	lineIndices []uint32
}

func (a MeshAsset) Vertices() []MeshVertex { return a.vertices }
func (a MeshAsset) Indices() []uint32      { return a.indices }
func (a MeshAsset) LineIndices() []uint32  { return a.lineIndices }

// LoadMesh registers a triangle mesh and derives its unique-edge line
// indices for wireframe drawing.
func (server *AssetServer) LoadMesh(vertices []MeshVertex, indices []uint32) Mesh {
	id := makeAssetId()

	server.meshes[id] = MeshAsset{
		version:     0,
		vertices:    vertices,
		indices:     indices,
		lineIndices: triangleEdges(indices),
	}

	return Mesh{
		assetId: id,
	}
}

func (server *AssetServer) GetMesh(mesh Mesh) (MeshAsset, bool) {
	asset, ok := server.meshes[mesh.assetId]
	return asset, ok
}

// triangleEdges converts a triangle index list into a deduplicated line
// index list. Shared edges appear once.
func triangleEdges(indices []uint32) []uint32 {
	type edge struct{ a, b uint32 }
	seen := make(map[edge]struct{}, len(indices))
	lines := make([]uint32, 0, len(indices)*2)

	addEdge := func(a, b uint32) {
		if a > b {
			a, b = b, a
		}
		if _, ok := seen[edge{a, b}]; ok {
			return
		}
		seen[edge{a, b}] = struct{}{}
		lines = append(lines, a, b)
	}

	for i := 0; i+2 < len(indices); i += 3 {
		addEdge(indices[i], indices[i+1])
		addEdge(indices[i+1], indices[i+2])
		addEdge(indices[i+2], indices[i])
	}

	return lines
}

func (AssetServerModule) Install(app *App, cmd *Commands) {
	app.addResources(&AssetServer{
		meshes: make(map[AssetId]MeshAsset),
	})
}

func makeAssetId() AssetId {
	return AssetId(uuid.NewString())
}
