// Package lifecycle holds the post workflow rules: which operation may move a
// post from one status to another, and who may trigger it.
//
// Nothing here touches storage. The engine actors call Plan to decide what a
// request would do and then persist the result with a conditional write.
package lifecycle

import (
	"strings"

	"gator-press/internal/models"
	"gator-press/internal/utils"
)

// Op is a named workflow operation.
type Op string

const (
	OpEdit    Op = "edit"
	OpSubmit  Op = "submit for review"
	OpApprove Op = "approve"
	OpReject  Op = "reject"
	OpPublish Op = "publish"
	OpDelete  Op = "delete"
)

// Outcome describes what an allowed operation does to a post.
type Outcome struct {
	// To is the status after the operation. Empty when the post is removed.
	To models.PostStatus
	// Steps are the status changes to append to the history, in order.
	Steps []Step
	// Removes is set when the operation permanently deletes the post.
	Removes bool
}

// Step is a single history-worthy status change.
type Step struct {
	From models.PostStatus
	To   models.PostStatus
}

// DeleteConfirmation carries the caller's explicit intent for destructive deletes.
type DeleteConfirmation struct {
	Confirmed   bool
	Reconfirmed bool
}

type rule struct {
	from          models.PostStatus
	to            models.PostStatus
	needsReviewer bool
	needsContent  bool
	removes       bool
}

// rules is the transition table. An (op, from) pair missing here is an
// invalid transition.
var rules = map[Op][]rule{
	OpEdit: {
		{from: models.StatusDraft, to: models.StatusDraft, needsContent: true},
	},
	OpSubmit: {
		{from: models.StatusDraft, to: models.StatusReview, needsContent: true},
	},
	OpApprove: {
		{from: models.StatusReview, to: models.StatusPublished, needsReviewer: true},
	},
	OpReject: {
		{from: models.StatusReview, needsReviewer: true, removes: true},
	},
	OpPublish: {
		{from: models.StatusDraft, to: models.StatusPublished, needsReviewer: true, needsContent: true},
		{from: models.StatusReview, to: models.StatusPublished, needsReviewer: true},
	},
	OpDelete: {
		{from: models.StatusDraft, removes: true},
		{from: models.StatusPublished, removes: true},
	},
}

func lookup(op Op, from models.PostStatus) (rule, bool) {
	for _, r := range rules[op] {
		if r.from == from {
			return r, true
		}
	}
	return rule{}, false
}

// Allowed reports whether op is defined for a post in status from, ignoring
// guards on the caller and the content.
func Allowed(op Op, from models.PostStatus) bool {
	_, ok := lookup(op, from)
	return ok
}

// NeedsReviewer reports whether op from status from is restricted to
// reviewers and admins.
func NeedsReviewer(op Op, from models.PostStatus) bool {
	r, ok := lookup(op, from)
	return ok && r.needsReviewer
}

// Plan checks op against post and caller and returns what it would do.
// post is the current stored state; title and content are the values the post
// will have when the transition lands (the new values for an edit).
func Plan(op Op, post *models.Post, caller models.Principal, title, content string) (*Outcome, error) {
	r, ok := lookup(op, post.Status)
	if !ok {
		return nil, utils.NewInvalidTransitionError(string(op), post.Status)
	}
	if r.needsReviewer && !caller.Role.CanReview() {
		return nil, utils.NewForbiddenError(string(op) + " requires reviewer or admin role")
	}
	if r.needsContent {
		if err := ValidateContent(title, content); err != nil {
			return nil, err
		}
	}

	out := &Outcome{To: r.to, Removes: r.removes}
	switch {
	case r.removes:
	case op == OpPublish && r.from == models.StatusDraft:
		// Shortcut: record the review step so history matches submit+approve.
		out.Steps = []Step{
			{From: models.StatusDraft, To: models.StatusReview},
			{From: models.StatusReview, To: models.StatusPublished},
		}
	case r.from != r.to:
		out.Steps = []Step{{From: r.from, To: r.to}}
	}
	return out, nil
}

// PlanDelete extends Plan with the rules for removing a post directly.
// Published posts need both confirmations and a caller that created the post
// or can review.
func PlanDelete(post *models.Post, caller models.Principal, confirm DeleteConfirmation) (*Outcome, error) {
	out, err := Plan(OpDelete, post, caller, post.Title, post.Content)
	if err != nil {
		return nil, err
	}
	if post.Status == models.StatusPublished {
		if !caller.Role.CanReview() && caller.UserID != post.CreatedBy {
			return nil, utils.NewForbiddenError("only the creator or a reviewer may delete a published post")
		}
		if !confirm.Confirmed || !confirm.Reconfirmed {
			return nil, utils.NewValidationError("deleting a published post requires double confirmation")
		}
	}
	return out, nil
}

// OpForTarget resolves a raw status change to the named operation that
// performs it. Only DRAFT->REVIEW, REVIEW->PUBLISHED and DRAFT->PUBLISHED have
// one.
func OpForTarget(from, to models.PostStatus) (Op, error) {
	switch {
	case from == models.StatusDraft && to == models.StatusReview:
		return OpSubmit, nil
	case from == models.StatusReview && to == models.StatusPublished:
		return OpApprove, nil
	case from == models.StatusDraft && to == models.StatusPublished:
		return OpPublish, nil
	}
	return "", utils.NewAppError(utils.ErrInvalidTransition,
		"no transition from "+string(from)+" to "+string(to), nil)
}

// ValidateContent enforces non-empty title and content.
func ValidateContent(title, content string) error {
	if strings.TrimSpace(title) == "" {
		return utils.NewValidationError("title is required")
	}
	if strings.TrimSpace(content) == "" {
		return utils.NewValidationError("content is required")
	}
	return nil
}

// ValidateNote enforces non-empty comment and feedback text.
func ValidateNote(text string) error {
	if strings.TrimSpace(text) == "" {
		return utils.NewValidationError("text is required")
	}
	return nil
}
