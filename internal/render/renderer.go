// Package render draws a session position as a PNG board diagram.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"math"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/chess-session-api/internal/domain"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	squareSize   = 64
	boardSize    = squareSize * 8
	sideMargin   = 28
	captionSpace = 36
	bottomMargin = 28
)

var (
	lightSquare     = color.RGBA{233, 207, 163, 255}
	darkSquare      = color.RGBA{187, 136, 96, 255}
	backgroundColor = color.RGBA{28, 31, 46, 255}
	lastMoveFill    = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	lastMoveArrow   = color.NRGBA{R: 148, G: 207, B: 255, A: 170}
	labelColor      = color.NRGBA{R: 204, G: 210, B: 236, A: 255}
)

var (
	ranksTopDown = []nchess.Rank{nchess.Rank8, nchess.Rank7, nchess.Rank6, nchess.Rank5, nchess.Rank4, nchess.Rank3, nchess.Rank2, nchess.Rank1}
	filesLeft    = []nchess.File{nchess.FileA, nchess.FileB, nchess.FileC, nchess.FileD, nchess.FileE, nchess.FileF, nchess.FileG, nchess.FileH}
)

// Options controls what is drawn besides the pieces.
type Options struct {
	LastMove *domain.MoveRecord
	Caption  string
}

// Size reports the width and height of rendered images.
func Size() (int, int) {
	return boardSize + sideMargin*2, boardSize + captionSpace + bottomMargin
}

// RenderPNG draws the position described by fen.
func RenderPNG(ctx context.Context, fen string, opts Options) ([]byte, error) {
	fenOpt, err := nchess.FEN(strings.TrimSpace(fen))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidPosition, err)
	}
	board := nchess.NewGame(fenOpt).Position().Board()

	w, h := Size()
	origin := image.Point{X: sideMargin, Y: captionSpace}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)

	drawSquares(img, origin)
	if from, to, ok := moveSquares(opts.LastMove); ok {
		if opts.LastMove.Color == "w" {
			drawSquareOverlay(img, from, origin, lastMoveFill)
			drawSquareOverlay(img, to, origin, lastMoveFill)
		}
	}
	if err := drawPieces(ctx, img, board, origin); err != nil {
		return nil, err
	}
	if from, to, ok := moveSquares(opts.LastMove); ok && opts.LastMove.Color == "b" {
		drawArrow(img, from, to, origin, lastMoveArrow)
	}
	drawLabels(img, origin, opts.Caption)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Caption summarises a session for the header line.
func Caption(g *domain.GameSession) string {
	if g == nil {
		return ""
	}
	turn := "White"
	if parts := strings.Fields(g.FEN); len(parts) > 1 && parts[1] == "b" {
		turn = "Black"
	}
	switch g.Status {
	case domain.StatusCheckmate:
		return fmt.Sprintf("Checkmate - %s is mated", turn)
	case domain.StatusStalemate:
		return "Stalemate"
	case domain.StatusDraw:
		return "Draw"
	}
	return fmt.Sprintf("%s to move - move %d", turn, len(g.Moves)/2+1)
}

func drawSquares(dst imagedraw.Image, origin image.Point) {
	for _, rank := range ranksTopDown {
		for _, file := range filesLeft {
			sq := nchess.NewSquare(file, rank)
			imagedraw.Draw(dst, squareRect(sq, origin), image.NewUniform(squareColor(sq)), image.Point{}, imagedraw.Src)
		}
	}
}

func drawPieces(ctx context.Context, dst imagedraw.Image, board *nchess.Board, origin image.Point) error {
	for sq, piece := range board.SquareMap() {
		if piece == nchess.NoPiece {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		pimg, err := pieceImage(piece, squareSize)
		if err != nil {
			return err
		}
		imagedraw.Draw(dst, squareRect(sq, origin), pimg, image.Point{}, imagedraw.Over)
	}
	return nil
}

func drawLabels(dst *image.RGBA, origin image.Point, caption string) {
	face := basicfont.Face7x13
	drawer := &font.Drawer{Dst: dst, Face: face, Src: image.NewUniform(labelColor)}
	ascent := face.Metrics().Ascent.Ceil()

	for row, rank := range ranksTopDown {
		baseline := origin.Y + row*squareSize + squareSize/2 + ascent/2
		drawCenteredText(drawer, rank.String(), origin.X-sideMargin/2, baseline)
	}
	for col, file := range filesLeft {
		center := origin.X + col*squareSize + squareSize/2
		drawCenteredText(drawer, file.String(), center, origin.Y+boardSize+ascent+4)
	}
	if caption = strings.TrimSpace(caption); caption != "" {
		drawCenteredText(drawer, caption, dst.Bounds().Dx()/2, captionSpace/2+ascent/2)
	}
}

func drawCenteredText(drawer *font.Drawer, text string, centerX, baseline int) {
	if text == "" {
		return
	}
	width := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-width/2, baseline)
	drawer.DrawString(text)
}

func drawSquareOverlay(img *image.RGBA, sq nchess.Square, origin image.Point, clr color.Color) {
	imagedraw.Draw(img, squareRect(sq, origin), image.NewUniform(clr), image.Point{}, imagedraw.Over)
}

// drawArrow paints a shaft and head from the centre of one square to another.
func drawArrow(img *image.RGBA, from, to nchess.Square, origin image.Point, clr color.Color) {
	if from == to {
		return
	}
	start := squareCenter(from, origin)
	end := squareCenter(to, origin)
	dx, dy := end.X-start.X, end.Y-start.Y
	length := math.Hypot(dx, dy)
	dirX, dirY := dx/length, dy/length
	perpX, perpY := -dirY, dirX

	shaft := length - squareSize*0.45
	if shaft < squareSize*0.35 {
		shaft = length * 0.6
	}
	half := squareSize * 0.16
	head := squareSize * 0.34
	base := pointF{X: start.X + dirX*shaft, Y: start.Y + dirY*shaft}

	fillTriangle(img, start.offset(perpX, perpY, -half), start.offset(perpX, perpY, half), base.offset(perpX, perpY, half), clr)
	fillTriangle(img, start.offset(perpX, perpY, -half), base.offset(perpX, perpY, half), base.offset(perpX, perpY, -half), clr)
	fillTriangle(img, end, base.offset(perpX, perpY, -head/2), base.offset(perpX, perpY, head/2), clr)
}

type pointF struct{ X, Y float64 }

func (p pointF) offset(dx, dy, k float64) pointF { return pointF{X: p.X + dx*k, Y: p.Y + dy*k} }

func fillTriangle(img *image.RGBA, a, b, c pointF, clr color.Color) {
	minX := int(math.Floor(math.Min(a.X, math.Min(b.X, c.X))))
	maxX := int(math.Ceil(math.Max(a.X, math.Max(b.X, c.X))))
	minY := int(math.Floor(math.Min(a.Y, math.Min(b.Y, c.Y))))
	maxY := int(math.Ceil(math.Max(a.Y, math.Max(b.Y, c.Y))))
	src := image.NewUniform(clr)
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			if inTriangle(float64(x)+0.5, float64(y)+0.5, a, b, c) {
				imagedraw.Draw(img, image.Rect(x, y, x+1, y+1), src, image.Point{}, imagedraw.Over)
			}
		}
	}
}

func inTriangle(x, y float64, a, b, c pointF) bool {
	denom := (b.Y-c.Y)*(a.X-c.X) + (c.X-b.X)*(a.Y-c.Y)
	if denom == 0 {
		return false
	}
	alpha := ((b.Y-c.Y)*(x-c.X) + (c.X-b.X)*(y-c.Y)) / denom
	beta := ((c.Y-a.Y)*(x-c.X) + (a.X-c.X)*(y-c.Y)) / denom
	return alpha >= 0 && beta >= 0 && 1-alpha-beta >= 0
}

func squareRect(sq nchess.Square, origin image.Point) image.Rectangle {
	x := origin.X + int(sq.File())*squareSize
	y := origin.Y + (7-int(sq.Rank()))*squareSize
	return image.Rect(x, y, x+squareSize, y+squareSize)
}

func squareCenter(sq nchess.Square, origin image.Point) pointF {
	r := squareRect(sq, origin)
	return pointF{X: float64(r.Min.X + squareSize/2), Y: float64(r.Min.Y + squareSize/2)}
}

func squareColor(sq nchess.Square) color.Color {
	if (int(sq.File())+int(sq.Rank()))%2 == 0 {
		return darkSquare
	}
	return lightSquare
}

func moveSquares(m *domain.MoveRecord) (nchess.Square, nchess.Square, bool) {
	if m == nil {
		return nchess.NoSquare, nchess.NoSquare, false
	}
	from, ok1 := parseSquare(m.From)
	to, ok2 := parseSquare(m.To)
	return from, to, ok1 && ok2
}

func parseSquare(s string) (nchess.Square, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return nchess.NoSquare, false
	}
	return nchess.NewSquare(nchess.File(s[0]-'a'), nchess.Rank(s[1]-'1')), true
}
