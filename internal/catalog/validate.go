package catalog

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bblohar/MyBook-project/internal/models"
)

// ErrInvalidBook is returned for input that cannot be stored.
var ErrInvalidBook = errors.New("invalid book")

const maxFieldLen = 255

func validate(in *models.BookInput) error {
	if in == nil {
		return fmt.Errorf("%w: missing body", ErrInvalidBook)
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidBook)
	}
	fields := []struct {
		name, value string
	}{
		{"title", in.Title},
		{"author", in.Author},
		{"location", in.Location},
		{"section", in.Section},
		{"category_name", in.CategoryName},
	}
	for _, f := range fields {
		if utf8.RuneCountInString(f.value) > maxFieldLen {
			return fmt.Errorf("%w: %s longer than %d characters", ErrInvalidBook, f.name, maxFieldLen)
		}
	}
	return nil
}
