package output

import (
	"encoding/json"

	"github.com/contextlens/contextlens/internal/core"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)
	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (f *JSONFormatter) FormatResponse(resp *core.GenerationResponse) (string, error) {
	if resp == nil {
		return "", nil
	}
	return f.marshal(resp)
}

func (f *JSONFormatter) FormatTasks(tasks []*core.BackgroundTask) (string, error) {
	if tasks == nil {
		tasks = []*core.BackgroundTask{}
	}
	return f.marshal(tasks)
}

func (f *JSONFormatter) FormatHealth(status core.HealthStatus) (string, error) {
	return f.marshal(status)
}

func (f *JSONFormatter) FormatStats(stats core.Stats) (string, error) {
	return f.marshal(stats)
}
