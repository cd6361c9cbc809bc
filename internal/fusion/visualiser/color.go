package visualiser

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// goldenAngle steps the hue so that consecutive IDs land far apart.
const goldenAngle = 360 * 0.6180339887498949

// BoxColor returns the display colour for a box ID. It depends on nothing
// but the ID.
func BoxColor(id int) color.Color {
	return boxColorful(id)
}

// BoxColorHex is BoxColor as a "#rrggbb" string.
func BoxColorHex(id int) string {
	return boxColorful(id).Hex()
}

func boxColorful(id int) colorful.Color {
	h := math.Mod(float64(id)*goldenAngle, 360)
	if h < 0 {
		h += 360
	}
	return colorful.Hsv(h, 0.75, 0.9)
}
