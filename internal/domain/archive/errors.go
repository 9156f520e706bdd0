package archive

import "errors"

// Sentinel kinds for archive errors. Every one of them aborts extraction.
var (
	ErrUnsupportedArchive = errors.New("unsupported archive format")
	ErrTooManyEntries     = errors.New("archive entry count exceeds limit")
	ErrArchiveTooLarge    = errors.New("archive uncompressed size exceeds limit")
	ErrExpansionRatio     = errors.New("archive expansion ratio exceeds limit")
	ErrUnsafeMember       = errors.New("unsafe archive member")
	ErrMemberSize         = errors.New("archive member larger than declared")
)

// Reason maps an extraction error to a short label for metrics and reports.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedArchive):
		return "unsupported"
	case errors.Is(err, ErrTooManyEntries):
		return "entry_count"
	case errors.Is(err, ErrArchiveTooLarge):
		return "total_size"
	case errors.Is(err, ErrExpansionRatio):
		return "expansion_ratio"
	case errors.Is(err, ErrUnsafeMember):
		return "unsafe_member"
	case errors.Is(err, ErrMemberSize):
		return "member_size"
	default:
		return "io"
	}
}
