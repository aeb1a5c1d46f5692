package lexer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func tokenize(t *testing.T, src string) []Token {
	t.Helper()
	l := New(src)
	var toks []Token
	for {
		tok := l.Next()
		toks = append(toks, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			break
		}
	}
	return toks
}

func TestOperatorsAndDelimiters(t *testing.T) {
	toks := tokenize(t, "(){};,.+-*!!====<=>=<>/")
	want := []TokenType{
		TokenLeftParen, TokenRightParen, TokenLeftBrace, TokenRightBrace,
		TokenSemicolon, TokenComma, TokenDot, TokenPlus, TokenMinus,
		TokenStar, TokenBang, TokenBangEqual, TokenEqualEqual, TokenEqual,
		TokenLessEqual, TokenGreaterEqual, TokenLess, TokenGreater,
		TokenSlash, TokenEOF,
	}
	require.Len(t, toks, len(want))
	for i, kind := range want {
		require.Equalf(t, kind, toks[i].Type, "token %d", i)
	}
}

func TestNumbers(t *testing.T) {
	toks := tokenize(t, "123 45.67 0.5")
	require.Equal(t, TokenNumber, toks[0].Type)
	require.Equal(t, "123", toks[0].Lexeme)
	require.Equal(t, "45.67", toks[1].Lexeme)
	require.Equal(t, "0.5", toks[2].Lexeme)
}

func TestNoTrailingDotOnNumber(t *testing.T) {
	toks := tokenize(t, "123.")
	require.Equal(t, "123", toks[0].Lexeme)
	require.Equal(t, TokenDot, toks[1].Type)
}

func TestKeywordsAndIdentifiers(t *testing.T) {
	toks := tokenize(t, "and class else false for fun if nil or print return super this true var while foo_Bar2")
	want := []TokenType{
		TokenAnd, TokenClass, TokenElse, TokenFalse, TokenFor, TokenFun,
		TokenIf, TokenNil, TokenOr, TokenPrint, TokenReturn, TokenSuper,
		TokenThis, TokenTrue, TokenVar, TokenWhile, TokenIdentifier,
		TokenEOF,
	}
	require.Len(t, toks, len(want))
	for i, kind := range want {
		require.Equalf(t, kind, toks[i].Type, "token %d", i)
	}
}

func TestStringLiteral(t *testing.T) {
	toks := tokenize(t, `"hello, world"`)
	require.Equal(t, TokenString, toks[0].Type)
	require.Equal(t, `"hello, world"`, toks[0].Lexeme)
}

func TestUnterminatedString(t *testing.T) {
	toks := tokenize(t, `"oops`)
	require.Equal(t, TokenError, toks[len(toks)-1].Type)
	require.Equal(t, "unterminated string", toks[len(toks)-1].Lexeme)
}

func TestStringSpansNewlinesAndCountsLines(t *testing.T) {
	l := New("\"a\nb\"\nvar")
	str := l.Next()
	require.Equal(t, TokenString, str.Type)
	next := l.Next()
	require.Equal(t, TokenVar, next.Type)
	require.Equal(t, 2, next.Line)
}

func TestLineComment(t *testing.T) {
	toks := tokenize(t, "1 // comment to EOL\n2")
	require.Equal(t, TokenNumber, toks[0].Type)
	require.Equal(t, "1", toks[0].Lexeme)
	require.Equal(t, TokenNumber, toks[1].Type)
	require.Equal(t, "2", toks[1].Lexeme)
	require.Equal(t, 2, toks[1].Line)
}

func TestBlockComment(t *testing.T) {
	toks := tokenize(t, "1 /* this\nspans lines */ 2")
	require.Equal(t, "1", toks[0].Lexeme)
	require.Equal(t, "2", toks[1].Lexeme)
	require.Equal(t, 2, toks[1].Line)
}

func TestUnterminatedBlockComment(t *testing.T) {
	toks := tokenize(t, "1 /* never closed")
	require.Equal(t, TokenNumber, toks[0].Type)
	require.Equal(t, TokenError, toks[1].Type)
	require.Equal(t, "unterminated block comment", toks[1].Lexeme)
}

func TestUnexpectedCharacter(t *testing.T) {
	toks := tokenize(t, "@")
	require.Equal(t, TokenError, toks[0].Type)
}

func TestLineTracking(t *testing.T) {
	toks := tokenize(t, "1\n2\n\n3")
	require.Equal(t, 1, toks[0].Line)
	require.Equal(t, 2, toks[1].Line)
	require.Equal(t, 4, toks[2].Line)
}
