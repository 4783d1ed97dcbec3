package csvimport

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/leadimport/internal/domain"
)

func TestParseTrimsHeaderAndValues(t *testing.T) {
	input := "\ufeff profileUrl , profileName,followersCount\n" +
		"https://instagram.com/a ,  alice ,1234\n" +
		"https://instagram.com/b,bob,\n"

	rows, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "https://instagram.com/a", rows[0]["profileUrl"])
	assert.Equal(t, "alice", rows[0]["profileName"])
	assert.Equal(t, "1234", rows[0]["followersCount"])

	v, ok := rows[1].Get("followersCount")
	assert.True(t, ok)
	assert.Empty(t, v)

	_, ok = rows[1].Get("bio")
	assert.False(t, ok)
}

func TestParseQuotedFields(t *testing.T) {
	input := "profileUrl,profileName,bio\n" +
		"u1,alice,\"line one\nline two, with comma\"\n"

	rows, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "line one\nline two, with comma", rows[0]["bio"])
}

func TestParseSpaceBeforeQuotedField(t *testing.T) {
	rows, err := Parse(strings.NewReader("profileUrl, profileName\nhttp://x, \"Bob, Jr\"\n"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "http://x", rows[0]["profileUrl"])
	assert.Equal(t, "Bob, Jr", rows[0]["profileName"])
}

func TestParseKeepsWhitespaceInsideQuotes(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  Row
	}{
		{
			name:  "quoted and unquoted padding",
			input: "profileUrl,profileName,bio\nu1, alice ,\"  padded  \"\n",
			want:  Row{"profileUrl": "u1", "profileName": "alice", "bio": "  padded  "},
		},
		{
			name:  "field after a multi-line quoted field",
			input: "profileUrl,profileName,bio\nu1,\"two\nlines\", \" x \"\n",
			want:  Row{"profileUrl": "u1", "profileName": "two\nlines", "bio": " x "},
		},
		{
			name:  "blank lines before the record",
			input: "profileUrl,profileName\n\n\r\nu1,\"  a  \"\n",
			want:  Row{"profileUrl": "u1", "profileName": "  a  "},
		},
		{
			name:  "crlf line endings",
			input: "profileUrl,profileName\r\n u1 ,\" b \"\r\n",
			want:  Row{"profileUrl": "u1", "profileName": " b "},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rows, err := Parse(strings.NewReader(tc.input))
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, tc.want, rows[0])
		})
	}
}

func TestParseQuotedWhitespaceAcrossLargeInput(t *testing.T) {
	var b strings.Builder
	b.WriteString("profileUrl,profileName,bio\n")
	for i := 0; i < 2000; i++ {
		fmt.Fprintf(&b, "u%d, name%d ,\"  bio %d  \"\n", i, i, i)
	}

	rows, err := Parse(strings.NewReader(b.String()))
	require.NoError(t, err)
	require.Len(t, rows, 2000)
	for i, row := range rows {
		assert.Equal(t, fmt.Sprintf("name%d", i), row["profileName"])
		assert.Equal(t, fmt.Sprintf("  bio %d  ", i), row["bio"])
	}
}

func TestParseHeaderOnly(t *testing.T) {
	rows, err := Parse(strings.NewReader("profileUrl,profileName\n"))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestParseEmptyInput(t *testing.T) {
	rows, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestParseMalformedInput(t *testing.T) {
	testCases := []struct {
		name  string
		input string
	}{
		{
			name:  "unterminated quote",
			input: "profileUrl,profileName\nu1,\"alice\n",
		},
		{
			name:  "bare quote in field",
			input: "profileUrl,profileName\nu1,al\"ice\n",
		},
		{
			name:  "field count mismatch",
			input: "profileUrl,profileName\nu1,alice,extra\n",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.input))
			require.Error(t, err)

			var perr *domain.ParseError
			require.ErrorAs(t, err, &perr)
			assert.Greater(t, perr.Line, 0)
		})
	}
}

func TestReaderStreamsRowsAndStopsOnError(t *testing.T) {
	input := "profileUrl,profileName\nu1,alice\nu2,bob,oops\nu3,carol\n"
	r := NewReader(strings.NewReader(input))

	row, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "alice", row["profileName"])
	assert.Equal(t, []string{"profileUrl", "profileName"}, r.Header())
	assert.Equal(t, 1, r.Rows())

	_, err = r.Next()
	var perr *domain.ParseError
	require.ErrorAs(t, err, &perr)

	// errors are sticky
	_, again := r.Next()
	assert.Same(t, err, again)
	assert.Equal(t, 1, r.Rows())
}

func TestReaderEOF(t *testing.T) {
	r := NewReader(strings.NewReader("profileUrl,profileName\nu1,alice\n"))

	_, err := r.Next()
	require.NoError(t, err)

	_, err = r.Next()
	assert.True(t, errors.Is(err, io.EOF))
}

func TestReaderRowsAreIndependent(t *testing.T) {
	r := NewReader(strings.NewReader("profileUrl,profileName\nu1,alice\nu2,bob\n"))

	first, err := r.Next()
	require.NoError(t, err)
	second, err := r.Next()
	require.NoError(t, err)

	assert.Equal(t, "alice", first["profileName"])
	assert.Equal(t, "bob", second["profileName"])
}
