package line

import "htbot/internal/transport"

// MenuCard is the flex bubble holding the three menu buttons.
func MenuCard(l transport.Links) map[string]any {
	button := func(style, label, uri string) map[string]any {
		return map[string]any{
			"type":   "button",
			"style":  style,
			"height": "sm",
			"action": map[string]any{"type": "uri", "label": label, "uri": uri},
		}
	}
	return map[string]any{
		"type": "bubble",
		"size": "mega",
		"body": map[string]any{
			"type":    "box",
			"layout":  "vertical",
			"spacing": "md",
			"contents": []any{
				map[string]any{"type": "text", "text": transport.MenuTitle, "weight": "bold", "size": "lg", "wrap": true},
			},
		},
		"footer": map[string]any{
			"type":    "box",
			"layout":  "vertical",
			"spacing": "sm",
			"contents": []any{
				button("primary", transport.LabelRegister, l.Register),
				button("secondary", transport.LabelStatus, l.Status),
				button("secondary", transport.LabelHistory, l.History),
			},
		},
	}
}
