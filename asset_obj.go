package meshview

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LoadObjMesh reads a Wavefront OBJ file and registers it as a mesh.
// Supports v/vt/vn and f statements; polygons are fan-triangulated and
// material statements are ignored. Vertices are deduplicated per
// position/uv/normal triplet.
func (server *AssetServer) LoadObjMesh(filename string) (Mesh, error) {
	file, err := os.Open(filename)
	if err != nil {
		return Mesh{}, fmt.Errorf("open obj %s: %w", filename, err)
	}
	defer file.Close()

	var positions [][3]float32
	var texCoords [][2]float32
	var normals [][3]float32

	var vertices []MeshVertex
	var indices []uint32
	lookup := make(map[string]uint32)

	resolveVertex := func(spec string) (uint32, error) {
		if idx, ok := lookup[spec]; ok {
			return idx, nil
		}

		var v MeshVertex
		parts := strings.Split(spec, "/")

		pi, err := objIndex(parts[0], len(positions))
		if err != nil {
			return 0, err
		}
		v.Position = positions[pi]

		if len(parts) > 1 && parts[1] != "" {
			ti, err := objIndex(parts[1], len(texCoords))
			if err != nil {
				return 0, err
			}
			v.TexCoord = texCoords[ti]
		}
		if len(parts) > 2 && parts[2] != "" {
			ni, err := objIndex(parts[2], len(normals))
			if err != nil {
				return 0, err
			}
			v.Normal = normals[ni]
		}

		idx := uint32(len(vertices))
		vertices = append(vertices, v)
		lookup[spec] = idx
		return idx, nil
	}

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}

		switch fields[0] {
		case "v":
			p, err := parseFloats3(fields[1:])
			if err != nil {
				return Mesh{}, fmt.Errorf("%s:%d: vertex: %w", filename, lineNo, err)
			}
			positions = append(positions, p)
		case "vt":
			if len(fields) < 3 {
				return Mesh{}, fmt.Errorf("%s:%d: texcoord needs 2 components", filename, lineNo)
			}
			u, err1 := strconv.ParseFloat(fields[1], 32)
			v, err2 := strconv.ParseFloat(fields[2], 32)
			if err1 != nil || err2 != nil {
				return Mesh{}, fmt.Errorf("%s:%d: bad texcoord", filename, lineNo)
			}
			// OBJ uses a bottom-left UV origin.
			texCoords = append(texCoords, [2]float32{float32(u), 1 - float32(v)})
		case "vn":
			n, err := parseFloats3(fields[1:])
			if err != nil {
				return Mesh{}, fmt.Errorf("%s:%d: normal: %w", filename, lineNo, err)
			}
			normals = append(normals, n)
		case "f":
			if len(fields) < 4 {
				return Mesh{}, fmt.Errorf("%s:%d: face needs at least 3 vertices", filename, lineNo)
			}
			face := make([]uint32, 0, len(fields)-1)
			for _, spec := range fields[1:] {
				idx, err := resolveVertex(spec)
				if err != nil {
					return Mesh{}, fmt.Errorf("%s:%d: face: %w", filename, lineNo, err)
				}
				face = append(face, idx)
			}
			for i := 1; i+1 < len(face); i++ {
				indices = append(indices, face[0], face[i], face[i+1])
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return Mesh{}, fmt.Errorf("read obj %s: %w", filename, err)
	}

	if len(indices) == 0 {
		return Mesh{}, fmt.Errorf("obj %s contains no faces", filename)
	}

	return server.LoadMesh(vertices, indices), nil
}

// objIndex converts a 1-based (possibly negative) OBJ index to 0-based.
func objIndex(s string, count int) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad index %q", s)
	}
	if i < 0 {
		i = count + i
	} else {
		i = i - 1
	}
	if i < 0 || i >= count {
		return 0, fmt.Errorf("index %q out of range", s)
	}
	return i, nil
}

func parseFloats3(fields []string) ([3]float32, error) {
	var out [3]float32
	if len(fields) < 3 {
		return out, fmt.Errorf("need 3 components, got %d", len(fields))
	}
	for i := 0; i < 3; i++ {
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return out, fmt.Errorf("bad float %q", fields[i])
		}
		out[i] = float32(f)
	}
	return out, nil
}
