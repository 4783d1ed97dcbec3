package csvimport

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/leadimport/internal/domain"
)

func TestTransformMapsColumns(t *testing.T) {
	row := Row{
		"profileUrl":        "https://instagram.com/alice",
		"profileName":       "alice",
		"fullName":          "Alice A",
		"instagramID":       "42",
		"isVerified":        "TRUE",
		"isPrivate":         "FALSE",
		"followersCount":    "1234",
		"followingCount":    "12.5",
		"website":           "",
		"mailFound":         "a@example.com",
		"mailFound2":        "alt@example.com",
		"businessCity":      "Lisbon",
		"timestamp":         "2024-01-15T10:30:00Z",
		"unexpected_column": "ignored",
	}

	lr := Transform(row)

	assert.Equal(t, "https://instagram.com/alice", lr.ProfileURL)
	assert.Equal(t, "alice", lr.ProfileName)
	require.NotNil(t, lr.FullName)
	assert.Equal(t, "Alice A", *lr.FullName)
	require.NotNil(t, lr.InstagramID)
	assert.Equal(t, "42", *lr.InstagramID)
	assert.True(t, lr.IsVerified)
	assert.False(t, lr.IsPrivate)
	assert.False(t, lr.IsBusinessAccount)

	require.NotNil(t, lr.FollowersCount.Ptr())
	assert.Equal(t, 1234.0, *lr.FollowersCount.Ptr())
	assert.Equal(t, 12.5, *lr.FollowingCount.Ptr())
	assert.Nil(t, lr.PostsCount.Ptr())
	assert.Equal(t, FieldAbsent, lr.PostsCount.State)

	assert.Nil(t, lr.Website)
	require.NotNil(t, lr.Email)
	assert.Equal(t, "a@example.com", *lr.Email)
	require.NotNil(t, lr.AlternativeEmail)
	assert.Equal(t, "alt@example.com", *lr.AlternativeEmail)
	require.NotNil(t, lr.BusinessCity)
	assert.Equal(t, "Lisbon", *lr.BusinessCity)

	ts := lr.Timestamp.Ptr()
	require.NotNil(t, ts)
	assert.True(t, ts.Equal(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)))
}

func TestTransformIsDeterministic(t *testing.T) {
	row := Row{"profileUrl": "u", "profileName": "n", "followersCount": "abc", "bio": "hi"}
	assert.Equal(t, Transform(row), Transform(row))
}

func TestParseStrictBool(t *testing.T) {
	testCases := []struct {
		in   string
		want bool
	}{
		{"TRUE", true},
		{"true", false},
		{"True", false},
		{"FALSE", false},
		{"False", false},
		{"1", false},
		{"", false},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseStrictBool(tc.in))
		})
	}

	// absent column behaves like empty
	assert.False(t, Transform(Row{"profileUrl": "u", "profileName": "n"}).IsVerified)
}

func TestParseNumber(t *testing.T) {
	testCases := []struct {
		name  string
		in    string
		state FieldState
		want  float64
	}{
		{"integer", "1234", FieldParsed, 1234},
		{"decimal", "0.25", FieldParsed, 0.25},
		{"exponent", "1e3", FieldParsed, 1000},
		{"negative", "-5", FieldParsed, -5},
		{"empty", "", FieldAbsent, 0},
		{"text", "abc", FieldInvalid, 0},
		{"thousands separator", "1,234", FieldInvalid, 0},
		{"nan literal", "NaN", FieldInvalid, 0},
		{"infinity literal", "Inf", FieldInvalid, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := ParseNumber(tc.in)
			assert.Equal(t, tc.state, f.State)
			if tc.state == FieldParsed {
				assert.Equal(t, tc.want, f.Value)
			}
			if tc.state == FieldInvalid {
				assert.Equal(t, tc.in, f.Raw)
				assert.Nil(t, f.Ptr())
			}
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	f := ParseTimestamp("2024-03-01")
	require.Equal(t, FieldParsed, f.State)
	assert.True(t, f.Value.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))

	f = ParseTimestamp("2024-03-01T12:00:00+02:00")
	require.Equal(t, FieldParsed, f.State)
	assert.True(t, f.Value.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.UTC, f.Value.Location())

	assert.Equal(t, FieldAbsent, ParseTimestamp("").State)

	f = ParseTimestamp("not a date")
	assert.Equal(t, FieldInvalid, f.State)
	assert.Equal(t, "not a date", f.Raw)
}

func TestResolvePolicies(t *testing.T) {
	row := Row{
		"profileUrl":     "u",
		"profileName":    "n",
		"followersCount": "lots",
		"postsCount":     "7",
		"timestamp":      "yesterday-ish",
	}
	lr := Transform(row)

	t.Run("null", func(t *testing.T) {
		lead, issues, err := lr.Resolve(3, PolicyNull)
		require.NoError(t, err)
		assert.Nil(t, lead.FollowersCount)
		assert.Nil(t, lead.Timestamp)
		require.NotNil(t, lead.PostsCount)
		assert.Equal(t, 7.0, *lead.PostsCount)
		assert.Equal(t, domain.LeadStatusNew, lead.Status)
		assert.Equal(t, []FieldIssue{
			{Row: 3, Field: "followersCount", Raw: "lots"},
			{Row: 3, Field: "timestamp", Raw: "yesterday-ish"},
		}, issues)
	})

	t.Run("reject", func(t *testing.T) {
		_, issues, err := lr.Resolve(3, PolicyReject)
		require.Error(t, err)
		assert.Len(t, issues, 2)

		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, 3, verr.Row)
		assert.Equal(t, "followersCount", verr.Field)
		assert.Equal(t, "lots", verr.Value)
	})

	t.Run("sentinel", func(t *testing.T) {
		lead, issues, err := lr.Resolve(3, PolicySentinel)
		require.NoError(t, err)
		assert.Len(t, issues, 2)
		require.NotNil(t, lead.FollowersCount)
		assert.True(t, math.IsNaN(*lead.FollowersCount))
		assert.Nil(t, lead.Timestamp)
	})

	t.Run("clean row under reject", func(t *testing.T) {
		lead, issues, err := Transform(Row{"profileUrl": "u", "profileName": "n"}).Resolve(1, PolicyReject)
		require.NoError(t, err)
		assert.Empty(t, issues)
		assert.Equal(t, "n", lead.ProfileName)
	})
}

func TestParseLeadingNumber(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{"1,234", 1, true},
		{"12k", 12, true},
		{"1.5M", 1.5, true},
		{"  42 followers", 42, true},
		{"-3.5e2x", -350, true},
		{".5", 0.5, true},
		{"7.", 7, true},
		{"1e", 1, true},
		{"0x10", 0, true},
		{"+8", 8, true},
		{"abc", 0, false},
		{"", 0, false},
		{"-", 0, false},
		{".", 0, false},
		{"NaN", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseLeadingNumber(tt.raw)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}

	v, ok := ParseLeadingNumber("-Infinity and beyond")
	require.True(t, ok)
	assert.True(t, math.IsInf(v, -1))
}

func TestResolveSentinelKeepsNumericPrefix(t *testing.T) {
	lr := Transform(Row{
		"profileUrl":           "u",
		"profileName":          "n",
		"followersCount":       "1,234",
		"followingCount":       "12k",
		"postsCount":           "1.5M",
		"mutualFollowersCount": "n/a",
	})

	lead, issues, err := lr.Resolve(1, PolicySentinel)
	require.NoError(t, err)
	assert.Len(t, issues, 4)
	require.NotNil(t, lead.FollowersCount)
	assert.Equal(t, 1.0, *lead.FollowersCount)
	require.NotNil(t, lead.FollowingCount)
	assert.Equal(t, 12.0, *lead.FollowingCount)
	require.NotNil(t, lead.PostsCount)
	assert.Equal(t, 1.5, *lead.PostsCount)
	require.NotNil(t, lead.MutualFollowersCount)
	assert.True(t, math.IsNaN(*lead.MutualFollowersCount))

	lead, _, err = lr.Resolve(1, PolicyNull)
	require.NoError(t, err)
	assert.Nil(t, lead.FollowersCount, "null policy does not salvage prefixes")
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyNull, p)

	p, err = ParsePolicy("sentinel")
	require.NoError(t, err)
	assert.Equal(t, PolicySentinel, p)

	_, err = ParsePolicy("drop")
	assert.Error(t, err)
}
