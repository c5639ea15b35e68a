package services

import (
	"fmt"

	billing_errors "billing-lifecycle/pkg/errors"
)

var (
	errNotPayable = fmt.Errorf("invoice is not payable: %w", billing_errors.ErrInvalidInput)
)
