package core

import "strings"

// ModelID selects a model variant. Provider routing per ID is configuration.
type ModelID string

const (
	ModelQuality     ModelID = "quality"
	ModelFast        ModelID = "fast"
	ModelLongContext ModelID = "long-context"
	ModelMultimodal  ModelID = "multimodal"
)

// DefaultModelID is used when a request names no model or an unknown one.
const DefaultModelID = ModelQuality

var supportedModelIDs = []ModelID{ModelQuality, ModelFast, ModelLongContext, ModelMultimodal}

var modelAliases = map[string]ModelID{
	"default": ModelQuality,
	"primary": ModelQuality,
	"cheap":   ModelFast,
	"long":    ModelLongContext,
	"vision":  ModelMultimodal,
}

// SupportedModelIDs returns the recognized identifiers in a stable order.
func SupportedModelIDs() []string {
	out := make([]string, 0, len(supportedModelIDs))
	for _, id := range supportedModelIDs {
		out = append(out, string(id))
	}
	return out
}

// ResolveModelID maps a requested identifier onto the enumeration.
// Unknown identifiers resolve to DefaultModelID.
func ResolveModelID(raw string) ModelID {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return DefaultModelID
	}
	for _, id := range supportedModelIDs {
		if string(id) == key {
			return id
		}
	}
	if id, ok := modelAliases[key]; ok {
		return id
	}
	return DefaultModelID
}

// IsKnownModelID reports whether raw names a supported identifier or alias.
func IsKnownModelID(raw string) bool {
	key := strings.ToLower(strings.TrimSpace(raw))
	if _, ok := modelAliases[key]; ok {
		return true
	}
	for _, id := range supportedModelIDs {
		if string(id) == key {
			return true
		}
	}
	return false
}
