package tool

import "time"

// WithLogging wraps h so that every call is logged and its result is
// enveloped as {"tool": name, "result": <handler output>}.
func WithLogging(name string, h Handler) Handler {
	return func(tc *ToolContext, payload map[string]any) (map[string]any, error) {
		start := time.Now()
		out, err := h(tc, payload)
		if err != nil {
			tc.Logger().Warn("tool.middleware.error", "tool", name, "duration", time.Since(start), "error", err)
			return nil, err
		}

		tc.Logger().Info("tool.middleware.ok", "tool", name, "duration", time.Since(start))

		return map[string]any{"tool": name, "result": out}, nil
	}
}
