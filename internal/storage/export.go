package storage

import (
	"encoding/json"
	"io"

	"github.com/san-kum/rigid/internal/scene"
)

type ExportData struct {
	RunMetadata
	Columns []string    `json:"columns"`
	Times   []float64   `json:"times"`
	Trace   [][]float64 `json:"trace"`
}

// ExportJSON writes the metadata and full trace of a run as one document.
func ExportJSON(w io.Writer, sceneName string, threads int, dt float64, result *scene.Result) error {
	return WriteJSON(w, ExportData{
		RunMetadata: newMetadata("", sceneName, threads, dt, result),
		Columns:     scene.TraceColumns,
		Times:       result.Times,
		Trace:       result.Trace,
	})
}

func WriteJSON(w io.Writer, data ExportData) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
