// Package forms validates user-submitted catalog item fields.
package forms

import (
	"fmt"
	"regexp"
	"strconv"
)

// Alphanumeric runs separated by single spaces; a leading space or any
// punctuation fails the match.
var fieldPattern = regexp.MustCompile(`^([A-Za-z0-9]+ ?)*$`)

const (
	titleMinCreate = 1
	titleMinEdit   = 3
	titleMax       = 12
	descriptionMax = 64
)

const (
	titleErrorMessage = "Title must be alphanumeric"
	descErrorMessage  = "Description must be alphanumeric"
)

// ItemForm carries the submitted item fields together with any validation
// errors keyed by field name. The raw values stay available so the form can
// be re-rendered with the user's input preserved.
type ItemForm struct {
	Title       string
	Description string
	Category    string
	CategoryID  uint
	Errors      map[string]string
}

// NewItemForm builds a form from raw submitted values
func NewItemForm(title, description, category string) *ItemForm {
	return &ItemForm{
		Title:       title,
		Description: description,
		Category:    category,
		Errors:      map[string]string{},
	}
}

// ValidateCreate checks the form against the creation rules (title 1-12)
func (f *ItemForm) ValidateCreate() bool {
	return f.validate(titleMinCreate)
}

// ValidateEdit checks the form against the edit rules (title 3-12)
func (f *ItemForm) ValidateEdit() bool {
	return f.validate(titleMinEdit)
}

func (f *ItemForm) validate(titleMin int) bool {
	f.Errors = map[string]string{}

	if f.Title == "" {
		f.Errors["title"] = "Title is required"
	} else if !fieldPattern.MatchString(f.Title) {
		f.Errors["title"] = titleErrorMessage
	} else if len(f.Title) < titleMin || len(f.Title) > titleMax {
		f.Errors["title"] = fmt.Sprintf("Title must be between %d and %d characters", titleMin, titleMax)
	}

	if !fieldPattern.MatchString(f.Description) {
		f.Errors["description"] = descErrorMessage
	} else if len(f.Description) > descriptionMax {
		f.Errors["description"] = fmt.Sprintf("Description must be at most %d characters", descriptionMax)
	}

	if id, err := strconv.ParseUint(f.Category, 10, 32); err != nil || id == 0 {
		f.Errors["category"] = "Choose a category"
	} else {
		f.CategoryID = uint(id)
	}

	return len(f.Errors) == 0
}

// Fail attaches a message to a field after a storage-level rejection, so
// constraint violations render exactly like validation failures
func (f *ItemForm) Fail(field, message string) {
	if f.Errors == nil {
		f.Errors = map[string]string{}
	}
	f.Errors[field] = message
}
