package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/chess-session-api/internal/domain"
)

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	return img
}

func cornerPixel(img image.Image, sq nchess.Square) color.RGBA {
	r := squareRect(sq, image.Point{X: sideMargin, Y: captionSpace})
	return color.RGBAModel.Convert(img.At(r.Min.X+1, r.Min.Y+1)).(color.RGBA)
}

func TestRenderStartPosition(t *testing.T) {
	data, err := RenderPNG(context.Background(), domain.StartFEN, Options{Caption: "White to move - move 1"})
	if err != nil {
		t.Fatalf("RenderPNG: %v", err)
	}
	img := decode(t, data)
	w, h := Size()
	if img.Bounds().Dx() != w || img.Bounds().Dy() != h {
		t.Fatalf("size = %v, want %dx%d", img.Bounds(), w, h)
	}
	if got := cornerPixel(img, nchess.E4); got != lightSquare {
		t.Fatalf("e4 corner = %v, want light square", got)
	}
	if got := cornerPixel(img, nchess.D4); got != darkSquare {
		t.Fatalf("d4 corner = %v, want dark square", got)
	}
}

func TestRenderHighlightsWhiteMove(t *testing.T) {
	fen := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"
	move := &domain.MoveRecord{From: "e2", To: "e4", Color: "w"}
	data, err := RenderPNG(context.Background(), fen, Options{LastMove: move})
	if err != nil {
		t.Fatalf("RenderPNG: %v", err)
	}
	img := decode(t, data)
	if got := cornerPixel(img, nchess.E2); got == lightSquare || got == darkSquare {
		t.Fatalf("e2 not highlighted: %v", got)
	}
	if got := cornerPixel(img, nchess.D2); got != darkSquare {
		t.Fatalf("d2 corner = %v, want plain dark square", got)
	}
}

func TestRenderRejectsBadFEN(t *testing.T) {
	if _, err := RenderPNG(context.Background(), "nonsense", Options{}); !errors.Is(err, domain.ErrInvalidPosition) {
		t.Fatalf("err = %v, want invalid position", err)
	}
}

func TestPieceImageCached(t *testing.T) {
	a, err := pieceImage(nchess.WhiteKnight, 32)
	if err != nil {
		t.Fatalf("pieceImage: %v", err)
	}
	b, _ := pieceImage(nchess.WhiteKnight, 32)
	if a != b {
		t.Fatal("expected cached image")
	}
}

func TestCaption(t *testing.T) {
	g := &domain.GameSession{FEN: "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3", Status: domain.StatusCheckmate}
	if got := Caption(g); got != "Checkmate - White is mated" {
		t.Fatalf("caption = %q", got)
	}
	g = &domain.GameSession{FEN: domain.StartFEN, Status: domain.StatusOngoing}
	if got := Caption(g); got != "White to move - move 1" {
		t.Fatalf("caption = %q", got)
	}
}
