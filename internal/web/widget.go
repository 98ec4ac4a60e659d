// Package web serves the embedded chat widget.
package web

import (
	_ "embed"
	"net/http"
)

//go:embed widget.html
var widgetHTML []byte

// Widget serves the single-page chat widget.
func Widget(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(widgetHTML)
}
