package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// Piece outlines on a 45x45 canvas. FILL and STROKE are substituted per side.
var pieceShapes = map[nchess.PieceType]string{
	nchess.Pawn: `<circle cx="22.5" cy="14" r="5" fill="FILL" stroke="STROKE" stroke-width="1.5"/>
<path d="M16 34 L19 21 H26 L29 34 Z" fill="FILL" stroke="STROKE" stroke-width="1.5"/>`,
	nchess.Rook: `<path d="M13 33 V29 H16 V17 H13 V10 H17 V13 H20.5 V10 H24.5 V13 H28 V10 H32 V17 H29 V29 H32 V33 Z" fill="FILL" stroke="STROKE" stroke-width="1.5"/>`,
	nchess.Knight: `<path d="M14 33 C14 25 20 23 19 19 C16 21 13 21 12 18 C11 15 17 9 22 9 L23 6 L26 10 C31 12 33 20 32 33 Z" fill="FILL" stroke="STROKE" stroke-width="1.5"/>
<circle cx="18" cy="14" r="1.2" fill="STROKE"/>`,
	nchess.Bishop: `<circle cx="22.5" cy="8" r="2.5" fill="FILL" stroke="STROKE" stroke-width="1.5"/>
<ellipse cx="22.5" cy="20" rx="6" ry="9" fill="FILL" stroke="STROKE" stroke-width="1.5"/>
<path d="M15 33 L19 27 H26 L30 33 Z" fill="FILL" stroke="STROKE" stroke-width="1.5"/>`,
	nchess.Queen: `<polygon points="10,13 15,27 18,12 22.5,26 27,12 30,27 35,13 32,33 13,33" fill="FILL" stroke="STROKE" stroke-width="1.5"/>
<circle cx="10" cy="11" r="2" fill="FILL" stroke="STROKE" stroke-width="1.2"/>
<circle cx="18" cy="10" r="2" fill="FILL" stroke="STROKE" stroke-width="1.2"/>
<circle cx="27" cy="10" r="2" fill="FILL" stroke="STROKE" stroke-width="1.2"/>
<circle cx="35" cy="11" r="2" fill="FILL" stroke="STROKE" stroke-width="1.2"/>`,
	nchess.King: `<path d="M21 4 H24 V7 H27 V10 H24 V14 H21 V10 H18 V7 H21 Z" fill="FILL" stroke="STROKE" stroke-width="1.2"/>
<path d="M13 33 C10 24 16 15 22.5 15 C29 15 35 24 32 33 Z" fill="FILL" stroke="STROKE" stroke-width="1.5"/>`,
}

const baseShape = `<rect x="11" y="34" width="23" height="5" rx="1" fill="FILL" stroke="STROKE" stroke-width="1.5"/>`

type pieceKey struct {
	piece nchess.Piece
	size  int
}

var (
	pieceCache   = map[pieceKey]image.Image{}
	pieceCacheMu sync.RWMutex
)

func pieceSVG(piece nchess.Piece) (string, error) {
	shape, ok := pieceShapes[piece.Type()]
	if !ok {
		return "", fmt.Errorf("no outline for piece %v", piece)
	}
	fill, stroke := "#f8f8f8", "#1a1a1a"
	if piece.Color() == nchess.Black {
		fill, stroke = "#1a1a1a", "#d8d8d8"
	}
	body := strings.NewReplacer("FILL", fill, "STROKE", stroke).Replace(shape + "\n" + baseShape)
	return `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 45 45" width="45" height="45">` + body + `</svg>`, nil
}

// pieceImage rasterises piece at size x size pixels, caching the result.
func pieceImage(piece nchess.Piece, size int) (image.Image, error) {
	key := pieceKey{piece: piece, size: size}
	pieceCacheMu.RLock()
	img, ok := pieceCache[key]
	pieceCacheMu.RUnlock()
	if ok {
		return img, nil
	}

	src, err := pieceSVG(piece)
	if err != nil {
		return nil, err
	}
	icon, err := oksvg.ReadIconStream(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	rgba := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(rgba, rgba.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)
	scanner := rasterx.NewScannerGV(size, size, rgba, rgba.Bounds())
	icon.Draw(rasterx.NewDasher(size, size, scanner), 1.0)

	pieceCacheMu.Lock()
	pieceCache[key] = rgba
	pieceCacheMu.Unlock()
	return rgba, nil
}
