package core

// messages.go maps technical errors to short operator-facing messages with a
// stable code, so a failed CLI run or inbox sweep can be looked up quickly.
//
//	DB001  connection refused         DB004  deadlock
//	DB002  connection reset           DB005  store busy / lock not available
//	DB003  timed out
//	FILE001 file too large            FILE003 wrong file type
//	FILE002 file not found
//	IMP001 too many imports           IMP003 unknown table
//	IMP002 import not found           IMP004 cancelled
//	ERR000 anything else; check the log for the run id

import (
	"fmt"
	"strings"
)

// UserMessage is an operator-facing description of an error.
type UserMessage struct {
	Message string
	Action  string
	Code    string
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns are matched in order against the lowercased error text.
// More specific patterns come first.
var errorPatterns = []errorPattern{
	{"too many concurrent imports", UserMessage{"Another import is still running", "Wait for it to finish and try again", "IMP001"}},
	{"import not found", UserMessage{"Import record not found", "Run 'xerimport list' to see stored imports", "IMP002"}},
	{"unknown table", UserMessage{"Stored table not found", "Run 'xerimport tables' to see stored tables", "IMP003"}},
	{"context canceled", UserMessage{"Import was cancelled", "Nothing was committed; run it again", "IMP004"}},

	{"file too large", UserMessage{"File exceeds the maximum size limit", "Raise IMPORT_MAX_FILE_SIZE or split the export", "FILE001"}},
	{"no such file", UserMessage{"File not found", "Check the path and try again", "FILE002"}},
	{"not an export file", UserMessage{"File does not look like an export file", "Only files with the configured extension are imported", "FILE003"}},

	{"connection refused", UserMessage{"Unable to connect to the database", "Check DATABASE_URL and that the server is up", "DB001"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Nothing was committed; run the import again", "DB002"}},
	{"deadlock", UserMessage{"Database was busy with conflicting work", "Run the import again", "DB004"}},
	{"store busy", UserMessage{"Stored tables stayed locked by another writer", "Run the import again once the other writer is done", "DB005"}},
	{"lock timeout", UserMessage{"Stored tables stayed locked by another writer", "Run the import again once the other writer is done", "DB005"}},
	{"context deadline exceeded", UserMessage{"Import timed out", "Raise IMPORT_TIMEOUT or import a smaller file", "DB003"}},
	{"timeout", UserMessage{"Operation timed out", "Try again later", "DB003"}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the log for details",
	Code:    "ERR000",
}

// MapError returns the first message whose pattern appears in err's text.
// Unmatched errors get the ERR000 fallback; a nil error gets the zero value.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	text := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(text, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matched a known pattern.
func IsUserFacing(err error) bool {
	return err != nil && MapError(err).Code != defaultMessage.Code
}
