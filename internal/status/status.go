// Package status holds the entry color state machine. Colors are the whole
// coordination protocol between the two actors, so every transition funnels
// through here.
package status

import "errors"

type Color string

const (
	White  Color = "white"  // untouched
	Yellow Color = "yellow" // in progress
	Gray   Color = "gray"   // processed, inactive
	Red    Color = "red"    // blocked
	Blue   Color = "blue"   // user edited, awaiting the agent
	Orange Color = "orange" // agent incorporated a user update, awaiting the user
	Green  Color = "green"  // user acknowledged the agent's incorporation
)

type Actor string

const (
	ActorUser  Actor = "user"
	ActorAgent Actor = "agent"
)

// ErrNotReviewable is returned when a review action targets an entry that
// is not in the reviewing actor's queue.
var ErrNotReviewable = errors.New("entry is not awaiting review by this actor")

var all = map[Color]struct{}{
	White: {}, Yellow: {}, Gray: {}, Red: {}, Blue: {}, Orange: {}, Green: {},
}

// Workflow colors are only reachable through edits and reviews; direct
// status changes stick to the plain lifecycle colors.
var direct = map[Color]struct{}{
	White: {}, Yellow: {}, Gray: {}, Red: {},
}

func Valid(c Color) bool {
	_, ok := all[c]
	return ok
}

func DirectlySettable(c Color) bool {
	_, ok := direct[c]
	return ok
}

// Initial is the color of every freshly created entry, regardless of what
// the caller asked for.
func Initial() Color {
	return White
}

// OnEdit is the color forced by a content edit. A user edit always lands
// blue; an agent edit always lands orange.
func OnEdit(actor Actor) Color {
	if actor == ActorAgent {
		return Orange
	}
	return Blue
}

// Review resolves a "mark reviewed" action. The agent consumes blue entries
// into gray; the user consumes orange entries into green. Anything else is
// not in that actor's queue.
func Review(actor Actor, current Color) (Color, error) {
	switch actor {
	case ActorAgent:
		if current == Blue {
			return Gray, nil
		}
	case ActorUser:
		if current == Orange {
			return Green, nil
		}
	}
	return current, ErrNotReviewable
}

func ValidActor(a Actor) bool {
	return a == ActorUser || a == ActorAgent
}
