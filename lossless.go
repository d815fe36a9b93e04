package collapsecheck

import "strings"

// LosslessFields keeps top-level members the verifier does not interpret.
// Extensions holds keys starting with "x-"; Unknown holds everything else.
type LosslessFields struct {
	Extensions map[string]any
	Unknown    map[string]any
}

// splitLossless separates the members of raw that are not in known into
// extensions ("x-" keys) and unknown (all other keys).
func splitLossless(raw map[string]any, known map[string]struct{}) (extensions, unknown map[string]any) {
	for k, v := range raw {
		if _, ok := known[k]; ok {
			continue
		}
		if strings.HasPrefix(k, "x-") {
			if extensions == nil {
				extensions = map[string]any{}
			}
			extensions[k] = v
			continue
		}
		if unknown == nil {
			unknown = map[string]any{}
		}
		unknown[k] = v
	}
	return extensions, unknown
}

func knownSet(keys ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		out[k] = struct{}{}
	}
	return out
}
