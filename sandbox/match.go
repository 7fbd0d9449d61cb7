package sandbox

import (
	"regexp"
	"unicode/utf8"
)

// decodeText returns b as a string, or an [EncodingError] naming subject if b
// is not valid UTF-8.
func decodeText(subject string, b []byte) (string, error) {
	if utf8.Valid(b) {
		return string(b), nil
	}

	offset := 0
	for offset < len(b) {
		r, size := utf8.DecodeRune(b[offset:])
		if r == utf8.RuneError && size <= 1 {
			break
		}

		offset += size
	}

	return "", &EncodingError{Subject: subject, Offset: offset}
}

// CompilePattern compiles pattern with Go's regexp syntax. A malformed pattern
// yields a [PatternError] carrying the pattern and the compiler diagnostic.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, &PatternError{Pattern: pattern, Err: err}
	}

	return re, nil
}

// MatchText checks that actual, decoded as UTF-8, equals expected byte for
// byte. No trimming or newline normalization is applied.
func MatchText(subject string, actual []byte, expected string) error {
	text, err := decodeText(subject, actual)
	if err != nil {
		return err
	}

	if text != expected {
		return &AssertionFailure{Kind: FailureContent, Subject: subject, Expected: expected, Actual: text}
	}

	return nil
}

// MatchPattern checks that pattern matches somewhere in actual. The pattern is
// compiled before actual is looked at, so a malformed pattern is always
// reported as a [PatternError] regardless of the captured bytes.
func MatchPattern(subject string, actual []byte, pattern string) error {
	re, err := CompilePattern(pattern)
	if err != nil {
		return err
	}

	text, err := decodeText(subject, actual)
	if err != nil {
		return err
	}

	if !re.MatchString(text) {
		return &AssertionFailure{Kind: FailurePattern, Subject: subject, Expected: pattern, Actual: text}
	}

	return nil
}
