// Package fen checks board-notation strings for syntactic well-formedness.
// It knows nothing about chess legality; a position that passes here may still
// be rejected by the rules engine.
package fen

import (
	"fmt"
	"strings"
)

const (
	ranksPerBoard  = 8
	squaresPerRank = 8
)

// Result is the outcome of Validate. Error is empty when Valid is true.
type Result struct {
	Valid bool
	Error string
}

func invalid(format string, args ...any) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

// Validate reports whether input is a well-formed FEN string. Only the board
// field is mandatory; each of the five metadata fields is checked only when
// present. The first failing rule is reported.
func Validate(input string) Result {
	if input == "" {
		return invalid("FEN must be a non-empty string")
	}
	parts := strings.Fields(input)
	if len(parts) == 0 {
		// blank input has a board field with no ranks at all
		parts = []string{""}
	}

	if r := validateBoard(parts[0]); !r.Valid {
		return r
	}

	if len(parts) >= 2 && parts[1] != "w" && parts[1] != "b" {
		return invalid(`Active color must be "w" or "b"`)
	}
	if len(parts) >= 3 && !validCastling(parts[2]) {
		return invalid("Invalid castling rights format")
	}
	if len(parts) >= 4 && !validEnPassant(parts[3]) {
		return invalid("Invalid en passant target square")
	}
	if len(parts) >= 5 && !isDigits(parts[4]) {
		return invalid("Halfmove clock must be a number")
	}
	if len(parts) >= 6 && (!isDigits(parts[5]) || strings.TrimLeft(parts[5], "0") == "") {
		return invalid("Fullmove number must be a positive integer")
	}
	return Result{Valid: true}
}

func validateBoard(board string) Result {
	ranks := strings.Split(board, "/")
	if len(ranks) != ranksPerBoard {
		return invalid("FEN must contain exactly %d ranks separated by /", ranksPerBoard)
	}
	for i, rank := range ranks {
		if rank == "" {
			return invalid("Invalid characters in rank %d", i+1)
		}
		count := 0
		for _, c := range rank {
			switch {
			case c >= '1' && c <= '8':
				count += int(c - '0')
			case isPieceLetter(c):
				count++
			default:
				return invalid("Invalid characters in rank %d", i+1)
			}
		}
		if count != squaresPerRank {
			return invalid("Rank %d must contain exactly %d squares, found %d", i+1, squaresPerRank, count)
		}
	}
	return Result{Valid: true}
}

func isPieceLetter(c rune) bool {
	return strings.ContainsRune("rnbqkpRNBQKP", c)
}

func validCastling(s string) bool {
	if s == "-" {
		return true
	}
	if s == "" {
		return false
	}
	for _, c := range s {
		if !strings.ContainsRune("KQkq", c) {
			return false
		}
	}
	return true
}

// validEnPassant accepts "-" or a square on rank 3 or 6, the only ranks a
// double pawn push can leave behind.
func validEnPassant(s string) bool {
	if s == "-" {
		return true
	}
	if len(s) != 2 {
		return false
	}
	return s[0] >= 'a' && s[0] <= 'h' && (s[1] == '3' || s[1] == '6')
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
