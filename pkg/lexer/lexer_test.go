package lexer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func tokenTypes(t *testing.T, input string) []TokenType {
	t.Helper()
	toks, err := New(input).Tokenize()
	require.NoError(t, err)
	types := make([]TokenType, len(toks))
	for i, tok := range toks {
		types[i] = tok.Type
	}
	return types
}

func TestTokenizeLetAndArithmetic(t *testing.T) {
	types := tokenTypes(t, "let x = 1 + 2 * 3;")
	require.Equal(t, []TokenType{
		TokenLet, TokenIdentifier, TokenAssign, TokenInteger, TokenPlus,
		TokenInteger, TokenStar, TokenInteger, TokenSemicolon, TokenEOF,
	}, types)
}

func TestTokenizeFloatVsInteger(t *testing.T) {
	toks, err := New("3.14 10 0.5").Tokenize()
	require.NoError(t, err)
	require.Equal(t, TokenFloat, toks[0].Type)
	require.Equal(t, "3.14", toks[0].Literal)
	require.Equal(t, TokenInteger, toks[1].Type)
	require.Equal(t, TokenFloat, toks[2].Type)
}

func TestTokenizeStringEscapes(t *testing.T) {
	toks, err := New(`"hello\nworld"`).Tokenize()
	require.NoError(t, err)
	require.Equal(t, TokenString, toks[0].Type)
	require.Equal(t, "hello\nworld", toks[0].Literal)
}

func TestTokenizeKeywordsAndArrow(t *testing.T) {
	types := tokenTypes(t, "func if else while return struct await yield =>")
	require.Equal(t, []TokenType{
		TokenFunc, TokenIf, TokenElse, TokenWhile, TokenReturn,
		TokenStruct, TokenAwait, TokenYield, TokenArrow, TokenEOF,
	}, types)
}

func TestTokenizeComparisonAndLogical(t *testing.T) {
	types := tokenTypes(t, "a == b != c && d || e <= f >= g")
	require.Contains(t, types, TokenEqual)
	require.Contains(t, types, TokenNotEqual)
	require.Contains(t, types, TokenAnd)
	require.Contains(t, types, TokenOr)
	require.Contains(t, types, TokenLessEq)
	require.Contains(t, types, TokenGreaterEq)
}

func TestTokenizeLineComment(t *testing.T) {
	types := tokenTypes(t, "let x = 1 // trailing comment\nlet y = 2")
	require.Equal(t, []TokenType{
		TokenLet, TokenIdentifier, TokenAssign, TokenInteger,
		TokenLet, TokenIdentifier, TokenAssign, TokenInteger, TokenEOF,
	}, types)
}

func TestTokenizeIllegalCharacter(t *testing.T) {
	_, err := New("let x = @").Tokenize()
	require.Error(t, err)
}

func TestTokenLineTracking(t *testing.T) {
	toks, err := New("let x = 1\nlet y = 2").Tokenize()
	require.NoError(t, err)
	require.Equal(t, 1, toks[0].Line)
	var secondLet Token
	found := false
	for i, tok := range toks {
		if i > 0 && tok.Type == TokenLet {
			secondLet = tok
			found = true
		}
	}
	require.True(t, found)
	require.Equal(t, 2, secondLet.Line)
}
