// Package conversation derives and parses the canonical two-party
// conversation key. The key is the two participant ids sorted
// lexicographically and joined with "_", so id(A,B) == id(B,A) and the
// key doubles as the storage primary key for a pair.
package conversation

import (
	"regexp"
	"strings"

	"github.com/pairlyhq/pairly-backend/pkg/apperrors"
)

// Delimiter joins the two sorted participant ids.
const Delimiter = "_"

// User identifiers are delimiter-free tokens. Keeping the underscore out
// of the identifier alphabet is what makes ParseID unambiguous.
var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9.-]{1,64}$`)

// IsValidUserID reports whether s is a well-formed participant id.
func IsValidUserID(s string) bool {
	return userIDPattern.MatchString(s)
}

// DeriveID returns the canonical conversation id for two distinct users.
func DeriveID(userA, userB string) (string, error) {
	if !IsValidUserID(userA) {
		return "", apperrors.InvalidIdentifier("invalid user identifier: " + userA)
	}
	if !IsValidUserID(userB) {
		return "", apperrors.InvalidIdentifier("invalid user identifier: " + userB)
	}
	if userA == userB {
		return "", apperrors.InvalidIdentifier("conversation requires two distinct users")
	}

	if userA > userB {
		userA, userB = userB, userA
	}
	return userA + Delimiter + userB, nil
}

// ParseID splits a conversation id back into its two participants.
// A split that does not yield exactly two valid identifiers in sorted
// order is rejected: a client can only produce an unsorted id by
// assembling it manually, so sortedness is treated as a tamper signal.
func ParseID(conversationID string) (string, string, error) {
	parts := strings.Split(conversationID, Delimiter)
	if len(parts) != 2 {
		return "", "", apperrors.New(apperrors.CodeMalformedConversation, "malformed conversation id")
	}

	userA, userB := parts[0], parts[1]
	if !IsValidUserID(userA) || !IsValidUserID(userB) {
		return "", "", apperrors.New(apperrors.CodeMalformedConversation, "malformed conversation id")
	}
	if userA >= userB {
		return "", "", apperrors.New(apperrors.CodeMalformedConversation, "conversation id participants out of order")
	}

	return userA, userB, nil
}

// IsParticipant reports whether userID is one of the two participants.
func IsParticipant(conversationID, userID string) bool {
	a, b, err := ParseID(conversationID)
	if err != nil {
		return false
	}
	return userID == a || userID == b
}
