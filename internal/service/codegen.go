package service

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NewOrderCode returns a time-ordered code such as ORD-0192F3A1B2C37D4E8F90A1B2C3D4E5F6.
func NewOrderCode() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate order code: %w", err)
	}
	return "ORD-" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")), nil
}
