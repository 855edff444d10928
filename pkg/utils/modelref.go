package utils

import "strings"

// SplitModelRef splits "backend:model" references. When the prefix is not a
// known backend the whole ref is a model name for the default backend, which
// keeps ollama tags like "llama3.1:8b" intact.
func SplitModelRef(ref string, isBackend func(string) bool) (backend, model string) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ""
	}
	if isBackend(ref) {
		return ref, ""
	}
	if i := strings.Index(ref, ":"); i > 0 && isBackend(ref[:i]) {
		return ref[:i], ref[i+1:]
	}
	return "", ref
}
