package glinject

// CursorImage is a snapshot of the hardware cursor. Pixels are packed as
// 0xAARRGGBB with premultiplied alpha, row by row, top-down. X and Y are
// the cursor position in root-window coordinates, Xhot and Yhot the
// hotspot offset within the image.
type CursorImage struct {
	X, Y       int
	Xhot, Yhot int

	Width  int
	Height int

	Pixels []uint32
}

// CursorSource provides cursor snapshots. The concrete implementation
// lives next to the graphics hooks; ok is false when the cursor extension
// is unavailable or the cursor cannot be fetched.
type CursorSource interface {
	Image() (*CursorImage, bool)
}

// compositeCursor blends the cursor into a bottom-up BGRA frame. areaX
// and areaY are the root-window coordinates of the frame origin. Fully
// opaque cursor pixels overwrite the frame; for all others the frame is
// attenuated by the remaining coverage and the premultiplied cursor value
// is added on top.
func compositeCursor(frame []byte, stride int, width, height int, areaX, areaY int, cursor *CursorImage) {
	x := cursor.X - cursor.Xhot - areaX
	y := cursor.Y - cursor.Yhot - areaY

	left, right := max(0, -x), min(cursor.Width, width-x)
	top, bottom := max(0, -y), min(cursor.Height, height-y)

	for j := top; j < bottom; j++ {
		cursorRow := cursor.Pixels[cursor.Width*j : cursor.Width*(j+1)]
		frameRow := frame[stride*(height-1-y-j):]

		for i := left; i < right; i++ {
			pixel := cursorRow[i]
			out := frameRow[4*(x+i):]

			a := uint32(pixel >> 24)
			r := byte(pixel >> 16)
			g := byte(pixel >> 8)
			b := byte(pixel)

			if a == 255 {
				out[2] = r
				out[1] = g
				out[0] = b
			} else {
				out[2] = byte((uint32(out[2])*(255-a)+127)/255) + r
				out[1] = byte((uint32(out[1])*(255-a)+127)/255) + g
				out[0] = byte((uint32(out[0])*(255-a)+127)/255) + b
			}
		}
	}
}
