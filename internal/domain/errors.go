package domain

import "errors"

var (
	// ErrInvalidRuleset is returned when a match cannot be initialized from the supplied configuration.
	ErrInvalidRuleset = errors.New("invalid ruleset")
	// ErrIllegalTransition is returned when an operation is attempted in the wrong phase or for the wrong question.
	ErrIllegalTransition = errors.New("illegal transition")
	// ErrAnswerTimingViolation rejects a single answer with impossible timing; the match continues.
	ErrAnswerTimingViolation = errors.New("answer timing violation")
	// ErrSuspiciousActivity marks a non-fatal anti-cheat flag.
	ErrSuspiciousActivity = errors.New("suspicious activity flagged")
	// ErrPeerDisconnected is the abort cause when a peer does not return within the grace period.
	ErrPeerDisconnected = errors.New("peer disconnected")
	// ErrSuspensionActive refuses to start or continue a match for a suspended player.
	ErrSuspensionActive = errors.New("suspension active")

	// ErrMatchNotFound is returned when no match is registered under the id.
	ErrMatchNotFound = errors.New("match not found")
	// ErrMatchExists is returned when a match id is initialized twice.
	ErrMatchExists = errors.New("match already exists")
	// ErrPlayerNotInMatch is returned when a user acts on a match they are not part of.
	ErrPlayerNotInMatch = errors.New("player not in match")
	// ErrQuestionsUnavailable indicates the question provider could not satisfy a ruleset.
	ErrQuestionsUnavailable = errors.New("questions unavailable")
	// ErrDuplicateMessage marks an inbound message whose sequence number was already applied.
	ErrDuplicateMessage = errors.New("duplicate message")
)
