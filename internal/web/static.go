package web

import (
	"embed"
)

// staticFiles holds the focus control page served at "/".
//
//go:embed static/*
var staticFiles embed.FS
