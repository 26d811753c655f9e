package utils

import "testing"

func TestFormatFileSize(testingHandle *testing.T) {
	testCases := []struct {
		name      string
		byteCount int64
		expected  string
	}{
		{name: "negative", byteCount: -5, expected: "0b"},
		{name: "zero", byteCount: 0, expected: "0b"},
		{name: "bytes", byteCount: 512, expected: "512b"},
		{name: "exact_kilobyte", byteCount: 1024, expected: "1kb"},
		{name: "fractional_kilobytes", byteCount: 1536, expected: "1.5kb"},
		{name: "large_kilobytes", byteCount: 10240, expected: "10kb"},
		{name: "megabytes", byteCount: 5 * 1024 * 1024, expected: "5mb"},
		{name: "gigabytes", byteCount: 3 * 1024 * 1024 * 1024, expected: "3gb"},
	}

	for _, testCase := range testCases {
		testingHandle.Run(testCase.name, func(subtestHandle *testing.T) {
			formatted := FormatFileSize(testCase.byteCount)
			if formatted != testCase.expected {
				subtestHandle.Fatalf("FormatFileSize(%d) = %q, expected %q", testCase.byteCount, formatted, testCase.expected)
			}
		})
	}
}
