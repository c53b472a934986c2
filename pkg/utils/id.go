package utils

import (
	"strings"

	"github.com/google/uuid"
)

// NewID 32 位十六进制 ID（uuid 去掉横线）
func NewID() string { return strings.ReplaceAll(uuid.NewString(), "-", "") }
