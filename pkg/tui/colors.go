package tui

import "strings"

const coveredHex = "#c0c0c0"

var namedColors = map[string]string{
	"black":  "#000000",
	"blue":   "#0000ff",
	"brown":  "#8b4513",
	"green":  "#008000",
	"grey":   "#808080",
	"gray":   "#808080",
	"navy":   "#000080",
	"orange": "#ffa500",
	"pink":   "#ffc0cb",
	"purple": "#800080",
	"red":    "#ff0000",
	"silver": "#c0c0c0",
	"white":  "#ffffff",
	"yellow": "#ffff00",
}

// colorHex maps a color name or #rrggbb value to a hex color.
func colorHex(name string) (string, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if hex, ok := namedColors[name]; ok {
		return hex, true
	}
	if len(name) == 7 && strings.HasPrefix(name, "#") && strings.Trim(name[1:], "0123456789abcdef") == "" {
		return name, true
	}
	return "", false
}
