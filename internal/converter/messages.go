package converter

import (
	"errors"
	"strings"
)

// userMessage pairs a failure with the text shown to the user. A failure
// matches when errors.Is finds the sentinel or, for errors that crossed a
// boundary as plain text, when one of the patterns occurs in the message.
type userMessage struct {
	sentinel error
	patterns []string
	message  string
}

// userMessages is checked in order; the first match wins.
var userMessages = []userMessage{
	{
		sentinel: ErrCorruptWorkbook,
		patterns: []string{"specified part does not exist", "not a valid zip file", "unsupported workbook file format"},
		message:  "The workbook may be damaged or in an unexpected format. Open it in Excel, save it again and retry.",
	},
	{
		sentinel: ErrFileLocked,
		patterns: lockedPatterns,
		message:  "The file is in use by another program. Close it there and retry.",
	},
	{
		sentinel: ErrFileNotFound,
		patterns: []string{"could not find file", "no such file or directory", "cannot find the file"},
		message:  "The selected file could not be found.",
	},
	{
		sentinel: ErrNoData,
		message:  "The worksheet has no data rows below the header row.",
	},
	{
		sentinel: ErrNoHeaders,
		message:  "Row 1 of the worksheet has no column headers.",
	},
	{
		sentinel: ErrUnsupportedFormat,
		message:  "Choose an Excel file (.xlsx, .xlsm, .xltx, .xltm).",
	},
}

// UserMessage converts a conversion failure into the text shown to the
// user. Known failures are rephrased; anything else is returned verbatim.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	for _, m := range userMessages {
		if errors.Is(err, m.sentinel) {
			return m.message
		}
	}

	msg := strings.ToLower(err.Error())
	for _, m := range userMessages {
		for _, p := range m.patterns {
			if strings.Contains(msg, p) {
				return m.message
			}
		}
	}

	return err.Error()
}
