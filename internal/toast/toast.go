// Package toast keeps transient UI notifications for a browser session.
//
// A Store holds the current list of toasts, applies add, update, dismiss and
// remove actions in call order, and publishes every new state to its
// listeners. Dismissed toasts stay in the list with Open cleared until a
// one-shot timer removes them.
package toast

import "time"

// Variant selects the visual style of a toast.
type Variant string

// Toast variants.
const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Link is an optional call to action rendered inside a toast.
// A non-empty Method turns it into a form submission instead of a plain link.
type Link struct {
	Label  string `json:"label"`
	Href   string `json:"href"`
	Method string `json:"method,omitempty"`
}

// Toast is one notification.
type Toast struct {
	ID          string
	Title       string
	Description string
	Action      *Link
	Duration    time.Duration
	Variant     Variant
	Open        bool
}

// Destructive reports whether the toast uses the error style.
func (t Toast) Destructive() bool {
	return t.Variant == VariantDestructive
}

// Patch describes a partial update of a toast. Nil fields are left untouched.
type Patch struct {
	ID          string
	Title       *string
	Description *string
	Action      *Link
	Duration    *time.Duration
	Variant     *Variant
	Open        *bool
}

// WithTitle returns a copy of p that sets the title.
func (p Patch) WithTitle(title string) Patch {
	p.Title = &title
	return p
}

// WithDescription returns a copy of p that sets the description.
func (p Patch) WithDescription(description string) Patch {
	p.Description = &description
	return p
}

// WithVariant returns a copy of p that sets the variant.
func (p Patch) WithVariant(v Variant) Patch {
	p.Variant = &v
	return p
}

// WithOpen returns a copy of p that sets the visibility flag.
func (p Patch) WithOpen(open bool) Patch {
	p.Open = &open
	return p
}

func (p Patch) apply(t Toast) Toast {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Action != nil {
		action := *p.Action
		t.Action = &action
	}
	if p.Duration != nil {
		t.Duration = *p.Duration
	}
	if p.Variant != nil {
		t.Variant = *p.Variant
	}
	if p.Open != nil {
		t.Open = *p.Open
	}
	return t
}

// State is an immutable snapshot of the toast list, newest first.
type State struct {
	Toasts []Toast
}

// Find returns the toast with the given id.
func (s State) Find(id string) (Toast, bool) {
	for _, t := range s.Toasts {
		if t.ID == id {
			return t, true
		}
	}
	return Toast{}, false
}

// Visible returns the toasts whose Open flag is set.
func (s State) Visible() []Toast {
	visible := make([]Toast, 0, len(s.Toasts))
	for _, t := range s.Toasts {
		if t.Open {
			visible = append(visible, t)
		}
	}
	return visible
}
