package async

import (
	"fmt"

	"github.com/notedex/notedex/internal/errors"
)

func errInvalidOperation(op string) error {
	return errors.New(errors.ErrCodeInvalidOperation,
		fmt.Sprintf("unknown task operation %q", op), nil).
		WithSuggestion("use one of: add, update, remove")
}

func errInvalidPath(path, reason string) error {
	return errors.New(errors.ErrCodeInvalidPath,
		fmt.Sprintf("invalid task path %q: %s", path, reason), nil).
		WithDetail("file_path", path)
}

func errContentTooLarge(path string, size, limit int) error {
	return errors.New(errors.ErrCodeContentTooLarge,
		fmt.Sprintf("content is %d bytes; limit is %d", size, limit), nil).
		WithDetail("file_path", path)
}
