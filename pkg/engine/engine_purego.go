//go:build !cgo_sqlite

package engine

import "github.com/mesh-intelligence/litewrap/pkg/types"

const defaultEngine = types.EnginePureGo
