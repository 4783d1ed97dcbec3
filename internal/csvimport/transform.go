package csvimport

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/timmy/leadimport/internal/domain"
)

// FieldState says how a typed CSV value was read.
type FieldState int

const (
	FieldAbsent  FieldState = iota // column missing or empty
	FieldParsed                    // Value holds the coerced value
	FieldInvalid                   // Raw could not be coerced
)

// Field is a coerced CSV value that keeps the raw text when coercion fails,
// so the caller decides what to store.
type Field[T any] struct {
	Value T
	Raw   string
	State FieldState
}

// Ptr returns the parsed value, or nil when absent or invalid.
func (f Field[T]) Ptr() *T {
	if f.State != FieldParsed {
		return nil
	}
	v := f.Value
	return &v
}

// FieldIssue describes one value that failed coercion.
type FieldIssue struct {
	Row   int    `json:"row"`
	Field string `json:"field"`
	Raw   string `json:"raw"`
}

// Optional and typed lead columns, as named in the CSV header.
const (
	ColumnFullName              = "fullName"
	ColumnBio                   = "bio"
	ColumnInstagramID           = "instagramID"
	ColumnImageURL              = "imageUrl"
	ColumnFollowersCount        = "followersCount"
	ColumnFollowingCount        = "followingCount"
	ColumnPostsCount            = "postsCount"
	ColumnMutualFollowersCount  = "mutualFollowersCount"
	ColumnIsBusinessAccount     = "isBusinessAccount"
	ColumnIsPrivate             = "isPrivate"
	ColumnIsVerified            = "isVerified"
	ColumnJoinedRecently        = "joinedRecently"
	ColumnBlockedByViewer       = "blockedByViewer"
	ColumnFollowedByViewer      = "followedByViewer"
	ColumnFollowsViewer         = "followsViewer"
	ColumnRequestedByViewer     = "requestedByViewer"
	ColumnCategory              = "category"
	ColumnBusinessCategory      = "businessCategory"
	ColumnBusinessStreetAddress = "businessStreetAddress"
	ColumnBusinessZipCode       = "businessZipCode"
	ColumnBusinessCity          = "businessCity"
	ColumnWebsite               = "website"
	ColumnMailFound             = "mailFound"
	ColumnMailFound2            = "mailFound2"
	ColumnPhoneNumber           = "phoneNumber"
	ColumnSnapchat              = "snapchat"
	ColumnQuery                 = "query"
	ColumnTimestamp             = "timestamp"
	ColumnError                 = "error"
)

// LeadRow is the canonical, typed form of one CSV row.
type LeadRow struct {
	ProfileURL  string
	ProfileName string
	FullName    *string
	Bio         *string
	InstagramID *string
	ImageURL    *string

	FollowersCount       Field[float64]
	FollowingCount       Field[float64]
	PostsCount           Field[float64]
	MutualFollowersCount Field[float64]

	IsBusinessAccount bool
	IsPrivate         bool
	IsVerified        bool
	JoinedRecently    bool
	BlockedByViewer   bool
	FollowedByViewer  bool
	FollowsViewer     bool
	RequestedByViewer bool

	Category              *string
	BusinessCategory      *string
	BusinessStreetAddress *string
	BusinessZipCode       *string
	BusinessCity          *string

	Website          *string
	Email            *string
	AlternativeEmail *string
	PhoneNumber      *string
	Snapchat         *string

	Query     *string
	Timestamp Field[time.Time]
	Error     *string
}

// Transform converts a raw row into a LeadRow. It has no side effects and
// always yields the same output for the same row.
func Transform(row Row) LeadRow {
	return LeadRow{
		ProfileURL:  row[ColumnProfileURL],
		ProfileName: row[ColumnProfileName],
		FullName:    optionalText(row, ColumnFullName),
		Bio:         optionalText(row, ColumnBio),
		InstagramID: optionalText(row, ColumnInstagramID),
		ImageURL:    optionalText(row, ColumnImageURL),

		FollowersCount:       ParseNumber(row[ColumnFollowersCount]),
		FollowingCount:       ParseNumber(row[ColumnFollowingCount]),
		PostsCount:           ParseNumber(row[ColumnPostsCount]),
		MutualFollowersCount: ParseNumber(row[ColumnMutualFollowersCount]),

		IsBusinessAccount: ParseStrictBool(row[ColumnIsBusinessAccount]),
		IsPrivate:         ParseStrictBool(row[ColumnIsPrivate]),
		IsVerified:        ParseStrictBool(row[ColumnIsVerified]),
		JoinedRecently:    ParseStrictBool(row[ColumnJoinedRecently]),
		BlockedByViewer:   ParseStrictBool(row[ColumnBlockedByViewer]),
		FollowedByViewer:  ParseStrictBool(row[ColumnFollowedByViewer]),
		FollowsViewer:     ParseStrictBool(row[ColumnFollowsViewer]),
		RequestedByViewer: ParseStrictBool(row[ColumnRequestedByViewer]),

		Category:              optionalText(row, ColumnCategory),
		BusinessCategory:      optionalText(row, ColumnBusinessCategory),
		BusinessStreetAddress: optionalText(row, ColumnBusinessStreetAddress),
		BusinessZipCode:       optionalText(row, ColumnBusinessZipCode),
		BusinessCity:          optionalText(row, ColumnBusinessCity),

		Website:          optionalText(row, ColumnWebsite),
		Email:            optionalText(row, ColumnMailFound),
		AlternativeEmail: optionalText(row, ColumnMailFound2),
		PhoneNumber:      optionalText(row, ColumnPhoneNumber),
		Snapchat:         optionalText(row, ColumnSnapchat),

		Query:     optionalText(row, ColumnQuery),
		Timestamp: ParseTimestamp(row[ColumnTimestamp]),
		Error:     optionalText(row, ColumnError),
	}
}

// ParseStrictBool maps exactly "TRUE" to true. Every other input, including
// "true", "True" and "FALSE", is false. Exports use the uppercase token and
// the mapping is kept case-sensitive for compatibility.
func ParseStrictBool(s string) bool {
	return s == "TRUE"
}

// ParseNumber reads a count column. Empty input is absent; input that is not
// a finite float is kept as Invalid.
func ParseNumber(raw string) Field[float64] {
	if raw == "" {
		return Field[float64]{}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return Field[float64]{Raw: raw, State: FieldInvalid}
	}
	return Field[float64]{Value: v, Raw: raw, State: FieldParsed}
}

var leadingNumber = regexp.MustCompile(`^[+-]?(Infinity|(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?)`)

// ParseLeadingNumber reads the longest numeric prefix of raw, the way legacy
// exports were coerced: "1,234" is 1, "12k" is 12 and "abc" is not a number.
func ParseLeadingNumber(raw string) (float64, bool) {
	m := leadingNumber.FindString(strings.TrimLeft(raw, " \t\n\r\v\f"))
	if m == "" {
		return 0, false
	}
	if strings.HasSuffix(m, "Infinity") {
		if strings.HasPrefix(m, "-") {
			return math.Inf(-1), true
		}
		return math.Inf(1), true
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		// out-of-range exponents still yield ±Inf, as the legacy coercion did
		var nerr *strconv.NumError
		if errors.As(err, &nerr) && errors.Is(nerr.Err, strconv.ErrRange) {
			return v, true
		}
		return 0, false
	}
	return v, true
}

// ParseTimestamp reads the timestamp column in any common layout, as UTC
// when the input carries no zone.
func ParseTimestamp(raw string) Field[time.Time] {
	if raw == "" {
		return Field[time.Time]{}
	}
	t, err := dateparse.ParseIn(raw, time.UTC)
	if err != nil {
		return Field[time.Time]{Raw: raw, State: FieldInvalid}
	}
	return Field[time.Time]{Value: t.UTC(), Raw: raw, State: FieldParsed}
}

func optionalText(row Row, column string) *string {
	v, ok := row[column]
	if !ok || v == "" {
		return nil
	}
	return &v
}

// CoercionPolicy decides what is stored for values that failed coercion.
type CoercionPolicy string

const (
	// PolicyNull stores nil and reports the issue.
	PolicyNull CoercionPolicy = "null"
	// PolicyReject fails the row with a *domain.ValidationError.
	PolicyReject CoercionPolicy = "reject"
	// PolicySentinel matches the legacy importer: numbers keep their numeric
	// prefix (ParseLeadingNumber) or become NaN, timestamps become nil.
	PolicySentinel CoercionPolicy = "sentinel"
)

// ParsePolicy validates a configured policy name.
func ParsePolicy(s string) (CoercionPolicy, error) {
	switch p := CoercionPolicy(s); p {
	case PolicyNull, PolicyReject, PolicySentinel:
		return p, nil
	case "":
		return PolicyNull, nil
	}
	return "", fmt.Errorf("unknown coercion policy %q", s)
}

// Issues lists the fields of r that failed coercion, tagged with rowNum.
func (r LeadRow) Issues(rowNum int) []FieldIssue {
	var issues []FieldIssue
	check := func(name string, state FieldState, raw string) {
		if state == FieldInvalid {
			issues = append(issues, FieldIssue{Row: rowNum, Field: name, Raw: raw})
		}
	}
	check(ColumnFollowersCount, r.FollowersCount.State, r.FollowersCount.Raw)
	check(ColumnFollowingCount, r.FollowingCount.State, r.FollowingCount.Raw)
	check(ColumnPostsCount, r.PostsCount.State, r.PostsCount.Raw)
	check(ColumnMutualFollowersCount, r.MutualFollowersCount.State, r.MutualFollowersCount.Raw)
	check(ColumnTimestamp, r.Timestamp.State, r.Timestamp.Raw)
	return issues
}

// Resolve applies policy and returns the lead to persist. rowNum is the
// 1-based data row number used in issues and errors. The lead has no ID or
// batch assigned.
func (r LeadRow) Resolve(rowNum int, policy CoercionPolicy) (domain.InstagramLead, []FieldIssue, error) {
	issues := r.Issues(rowNum)
	if policy == PolicyReject && len(issues) > 0 {
		first := issues[0]
		return domain.InstagramLead{}, issues, &domain.ValidationError{Row: first.Row, Field: first.Field, Value: first.Raw}
	}

	number := func(f Field[float64]) *float64 {
		if f.State == FieldInvalid && policy == PolicySentinel {
			v, ok := ParseLeadingNumber(f.Raw)
			if !ok {
				v = math.NaN()
			}
			return &v
		}
		return f.Ptr()
	}

	lead := domain.InstagramLead{
		ProfileURL:  r.ProfileURL,
		ProfileName: r.ProfileName,
		FullName:    r.FullName,
		Bio:         r.Bio,
		InstagramID: r.InstagramID,
		ImageURL:    r.ImageURL,

		FollowersCount:       number(r.FollowersCount),
		FollowingCount:       number(r.FollowingCount),
		PostsCount:           number(r.PostsCount),
		MutualFollowersCount: number(r.MutualFollowersCount),

		IsBusinessAccount: r.IsBusinessAccount,
		IsPrivate:         r.IsPrivate,
		IsVerified:        r.IsVerified,
		JoinedRecently:    r.JoinedRecently,
		BlockedByViewer:   r.BlockedByViewer,
		FollowedByViewer:  r.FollowedByViewer,
		FollowsViewer:     r.FollowsViewer,
		RequestedByViewer: r.RequestedByViewer,

		Category:              r.Category,
		BusinessCategory:      r.BusinessCategory,
		BusinessStreetAddress: r.BusinessStreetAddress,
		BusinessZipCode:       r.BusinessZipCode,
		BusinessCity:          r.BusinessCity,

		Website:          r.Website,
		Email:            r.Email,
		AlternativeEmail: r.AlternativeEmail,
		PhoneNumber:      r.PhoneNumber,
		Snapchat:         r.Snapchat,

		Query:     r.Query,
		Timestamp: r.Timestamp.Ptr(),
		Error:     r.Error,

		Status: domain.LeadStatusNew,
	}
	return lead, issues, nil
}
