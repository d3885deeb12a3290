package shaders

import (
	_ "embed"
)

//go:embed wireframe.wgsl
var WireframeWGSL string

//go:embed text.wgsl
var TextWGSL string
