package domain

import "fmt"

// Action is a user-initiated change mirrored to the remote mailbox.
type Action string

const (
	ActionMarkRead   Action = "markRead"
	ActionMarkUnread Action = "markUnread"
	ActionArchive    Action = "archive"
	ActionUnarchive  Action = "unarchive"
)

// LabelTarget selects whether a label mutation applies to one message or a whole thread.
type LabelTarget string

const (
	TargetMessage LabelTarget = "message"
	TargetThread  LabelTarget = "thread"
)

// LabelMutation is an add-set and a remove-set of label tokens.
type LabelMutation struct {
	Add    []string
	Remove []string
}

// Mutation maps an action onto the labels it touches.
func (a Action) Mutation() (LabelMutation, error) {
	switch a {
	case ActionMarkRead:
		return LabelMutation{Remove: []string{LabelUnread}}, nil
	case ActionMarkUnread:
		return LabelMutation{Add: []string{LabelUnread}}, nil
	case ActionArchive:
		return LabelMutation{Remove: []string{LabelInbox}}, nil
	case ActionUnarchive:
		return LabelMutation{Add: []string{LabelInbox}}, nil
	}
	return LabelMutation{}, fmt.Errorf("%w: %q", ErrInvalidAction, string(a))
}

// Apply computes the label set that results from the mutation: removals first, then additions.
func (m LabelMutation) Apply(labels []string) LabelSet {
	remove := make(map[string]struct{}, len(m.Remove))
	for _, l := range m.Remove {
		remove[l] = struct{}{}
	}
	next := make([]string, 0, len(labels)+len(m.Add))
	for _, l := range labels {
		if _, drop := remove[l]; !drop {
			next = append(next, l)
		}
	}
	next = append(next, m.Add...)
	return NewLabelSet(next...)
}
