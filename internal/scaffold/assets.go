package scaffold

import "embed"

//go:embed all:assets
var assetsFS embed.FS
